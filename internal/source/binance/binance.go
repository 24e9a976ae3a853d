// Package binance adapts Binance USD-M futures to the source contracts.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

const fundingHistoryLimit = 1000

// Source reads positions, funding history and commissions from Binance
// USD-M futures.
type Source struct {
	client        *futures.Client
	intervalHours float64
	log           *logger.Log
}

// New builds a Binance source from the exchange configuration. The shared
// reader settings control the HTTP connection pool and request timeout.
func New(cfg *appconfig.Config) *Source {
	exCfg := cfg.Exchanges.Binance

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.Pool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.Pool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.Pool.IdleConnTimeout,
		DisableCompression:  false,
	}

	client := futures.NewClient(exCfg.APIKey, exCfg.Secret)
	client.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout}
	if exCfg.BaseURL != "" {
		client.SetApiEndpoint(exCfg.BaseURL)
	}

	return &Source{
		client:        client,
		intervalHours: exCfg.IntervalHours,
		log:           logger.GetLogger(),
	}
}

func (s *Source) Name() string { return model.ExchangeBinance }

func (s *Source) FundingIntervalHours() float64 { return s.intervalHours }

// FetchPositions returns all non-flat USD-M futures positions.
func (s *Source) FetchPositions(ctx context.Context) ([]model.RawPosition, error) {
	risks, err := s.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance position risk: %w", err)
	}

	positions := make([]model.RawPosition, 0, len(risks))
	for _, risk := range risks {
		size, err := strconv.ParseFloat(risk.PositionAmt, 64)
		if err != nil || size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(risk.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(risk.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(risk.UnRealizedProfit, 64)
		leverage, _ := strconv.ParseFloat(risk.Leverage, 64)

		side := model.SideLong
		if size < 0 {
			side = model.SideShort
		}

		positions = append(positions, model.RawPosition{
			Exchange:      model.ExchangeBinance,
			Symbol:        risk.Symbol,
			Size:          size,
			Side:          side,
			EntryPrice:    entry,
			CurrentPrice:  mark,
			UnrealizedPnL: pnl,
			Leverage:      leverage,
			MarginMode:    risk.MarginType,
		})
	}
	return positions, nil
}

// FetchFundingHistory returns funding settlements for rawSymbol over the
// past days, oldest first.
func (s *Source) FetchFundingHistory(ctx context.Context, rawSymbol string, days int) ([]model.FundingRatePoint, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	rates, err := s.client.NewFundingRateService().
		Symbol(rawSymbol).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(fundingHistoryLimit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance funding history %s: %w", rawSymbol, err)
	}

	points := make([]model.FundingRatePoint, 0, len(rates))
	for _, r := range rates {
		rate, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			s.log.WithComponent("binance_source").WithFields(logger.Fields{
				"symbol": rawSymbol,
				"rate":   r.FundingRate,
			}).Warn("skipping unparsable funding rate")
			continue
		}
		points = append(points, model.FundingRatePoint{
			TimestampMs: r.FundingTime,
			Rate:        rate,
			Symbol:      rawSymbol,
		})
	}
	return points, nil
}

// FetchFees sums COMMISSION income over the past days. Binance reports
// commissions as negative income; the absolute total is returned.
func (s *Source) FetchFees(ctx context.Context, days int) (float64, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	incomes, err := s.client.NewGetIncomeHistoryService().
		IncomeType("COMMISSION").
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(fundingHistoryLimit).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance income history: %w", err)
	}

	total := 0.0
	for _, income := range incomes {
		v, err := strconv.ParseFloat(income.Income, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = -v
		}
		total += v
	}
	return total, nil
}
