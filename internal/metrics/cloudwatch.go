// Package metrics publishes per-refresh observations to CloudWatch so the
// aggregation loop can be watched without scraping logs.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Publisher pushes refresh metrics to a CloudWatch namespace. Publishing
// is best effort; failures are logged and never surfaced to the engine.
type Publisher struct {
	client    *cloudwatch.Client
	namespace string
	log       *logger.Log
}

// NewPublisher builds a CloudWatch publisher from the metrics
// configuration, using the default AWS credential chain.
func NewPublisher(cfg *appconfig.Config) (*Publisher, error) {
	ctx := context.Background()
	opts := []func(*config.LoadOptions) error{}
	if cfg.Metrics.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Metrics.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Metrics.Namespace,
		log:       logger.GetLogger(),
	}, nil
}

// EmitRefresh publishes one datum set describing a completed refresh
// cycle.
func (p *Publisher) EmitRefresh(ctx context.Context, snap *model.Snapshot, duration time.Duration, fetchErrors int) {
	if p == nil || p.client == nil || snap == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	dims := []cwtypes.Dimension{
		{Name: aws.String("component"), Value: aws.String("dashboard_engine")},
	}
	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Unit:       unit,
			Value:      aws.Float64(value),
		}
	}

	data := []cwtypes.MetricDatum{
		datum("refresh_duration_ms", float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
		datum("positions", float64(len(snap.Positions)), cwtypes.StandardUnitCount),
		datum("tokens", float64(len(snap.TokenExposures)), cwtypes.StandardUnitCount),
		datum("arbitrage_candidates", float64(len(snap.Arbitrage)), cwtypes.StandardUnitCount),
		datum("fetch_errors", float64(fetchErrors), cwtypes.StandardUnitCount),
		datum("total_notional", snap.TotalNotional, cwtypes.StandardUnitNone),
		datum("total_delta", snap.TotalDelta, cwtypes.StandardUnitNone),
		datum("total_funding_pnl", snap.TotalFundingPnL, cwtypes.StandardUnitNone),
	}

	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		p.log.WithComponent("cloudwatch").WithError(err).Warn("failed to publish refresh metrics")
		return
	}
	p.log.WithComponent("cloudwatch").WithFields(logger.Fields{
		"cycle_id": snap.CycleID,
		"metrics":  len(data),
	}).Debug("published refresh metrics")
}
