// Package okx adapts OKX perpetual swaps to the source contracts. OKX has
// no maintained Go SDK that covers the v5 account endpoints used here, so
// requests are signed and issued directly.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/internal/cache"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

const (
	defaultBaseURL      = "https://www.okx.com"
	pathPositions       = "/api/v5/account/positions"
	pathBills           = "/api/v5/account/bills"
	pathFundingHistory  = "/api/v5/public/funding-rate-history"
	pathInstruments     = "/api/v5/public/instruments"
	timestampLayout     = "2006-01-02T15:04:05.000Z"
	contractValueTTL    = 24 * time.Hour
	fundingHistoryLimit = "100"
)

// Source reads positions, funding history and fees from OKX v5. Position
// sizes arrive in contracts and are converted to base units using the
// instrument's contract value, cached for a day.
type Source struct {
	baseURL       string
	apiKey        string
	secret        string
	passphrase    string
	intervalHours float64
	httpClient    *http.Client
	limiter       *rate.Limiter
	contractVals  *cache.Cache
	log           *logger.Log
}

// New builds an OKX source from the exchange configuration.
func New(cfg *appconfig.Config) *Source {
	exCfg := cfg.Exchanges.Okx

	baseURL := exCfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.Pool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.Pool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.Pool.IdleConnTimeout,
	}

	return &Source{
		baseURL:       baseURL,
		apiKey:        exCfg.APIKey,
		secret:        exCfg.Secret,
		passphrase:    exCfg.Passphrase,
		intervalHours: exCfg.IntervalHours,
		httpClient:    &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.Reader.RateLimit.RequestsPerSecond), cfg.Reader.RateLimit.BurstSize),
		contractVals:  cache.New(),
		log:           logger.GetLogger(),
	}
}

func (s *Source) Name() string { return model.ExchangeOKX }

func (s *Source) FundingIntervalHours() float64 { return s.intervalHours }

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get issues a GET request against path+query, signing it when signed is
// true, and decodes the data array into out.
func (s *Source) get(ctx context.Context, path, query string, signed bool, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	requestPath := path
	if query != "" {
		requestPath += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+requestPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		timestamp := time.Now().UTC().Format(timestampLayout)
		req.Header.Set("OK-ACCESS-KEY", s.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", sign(s.secret, timestamp, http.MethodGet, requestPath, ""))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", s.passphrase)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Code != "0" {
		return fmt.Errorf("code %s: %s", envelope.Code, envelope.Msg)
	}
	return json.Unmarshal(envelope.Data, out)
}

type positionData struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	PosSide string `json:"posSide"`
	AvgPx   string `json:"avgPx"`
	MarkPx  string `json:"markPx"`
	Upl     string `json:"upl"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
}

// FetchPositions returns all open perpetual swap positions. Sizes are
// converted from contracts to base units via the instrument contract
// value.
func (s *Source) FetchPositions(ctx context.Context) ([]model.RawPosition, error) {
	var data []positionData
	if err := s.get(ctx, pathPositions, "instType=SWAP", true, &data); err != nil {
		return nil, fmt.Errorf("okx positions: %w", err)
	}

	positions := make([]model.RawPosition, 0, len(data))
	for _, p := range data {
		contracts, err := strconv.ParseFloat(p.Pos, 64)
		if err != nil || contracts == 0 {
			continue
		}
		ctVal, err := s.contractValue(ctx, p.InstID)
		if err != nil {
			s.log.WithComponent("okx_source").WithError(err).WithFields(logger.Fields{
				"inst_id": p.InstID,
			}).Warn("contract value lookup failed, assuming 1")
			ctVal = 1
		}
		size := contracts * ctVal

		entry, _ := strconv.ParseFloat(p.AvgPx, 64)
		mark, _ := strconv.ParseFloat(p.MarkPx, 64)
		pnl, _ := strconv.ParseFloat(p.Upl, 64)
		leverage, _ := strconv.ParseFloat(p.Lever, 64)

		side := model.SideLong
		switch {
		case p.PosSide == "short":
			side = model.SideShort
			if size > 0 {
				size = -size
			}
		case p.PosSide == "long":
			side = model.SideLong
		default: // net mode, sign carries the side
			if size < 0 {
				side = model.SideShort
			}
		}

		positions = append(positions, model.RawPosition{
			Exchange:      model.ExchangeOKX,
			Symbol:        p.InstID,
			Size:          size,
			Side:          side,
			EntryPrice:    entry,
			CurrentPrice:  mark,
			UnrealizedPnL: pnl,
			Leverage:      leverage,
			MarginMode:    p.MgnMode,
		})
	}
	return positions, nil
}

type instrumentData struct {
	InstID string `json:"instId"`
	CtVal  string `json:"ctVal"`
}

// contractValue returns the base-unit value of one contract for instID.
func (s *Source) contractValue(ctx context.Context, instID string) (float64, error) {
	if v, ok := s.contractVals.Get(instID); ok {
		return v.(float64), nil
	}

	var data []instrumentData
	query := "instType=SWAP&instId=" + instID
	if err := s.get(ctx, pathInstruments, query, false, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("instrument %s not found", instID)
	}
	ctVal, err := strconv.ParseFloat(data[0].CtVal, 64)
	if err != nil || ctVal <= 0 {
		return 0, fmt.Errorf("instrument %s has invalid ctVal %q", instID, data[0].CtVal)
	}
	s.contractVals.Set(instID, ctVal, contractValueTTL)
	return ctVal, nil
}

type fundingData struct {
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
}

// FetchFundingHistory returns funding settlements for rawSymbol over the
// past days, oldest first. OKX returns newest first; entries outside the
// window are dropped.
func (s *Source) FetchFundingHistory(ctx context.Context, rawSymbol string, days int) ([]model.FundingRatePoint, error) {
	var data []fundingData
	query := "instId=" + rawSymbol + "&limit=" + fundingHistoryLimit
	if err := s.get(ctx, pathFundingHistory, query, false, &data); err != nil {
		return nil, fmt.Errorf("okx funding history %s: %w", rawSymbol, err)
	}

	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	points := make([]model.FundingRatePoint, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		item := data[i]
		ts, err := strconv.ParseInt(item.FundingTime, 10, 64)
		if err != nil || ts < cutoff {
			continue
		}
		fundingRate, err := strconv.ParseFloat(item.FundingRate, 64)
		if err != nil {
			continue
		}
		points = append(points, model.FundingRatePoint{
			TimestampMs: ts,
			Rate:        fundingRate,
			Symbol:      rawSymbol,
		})
	}
	return points, nil
}

type billData struct {
	Fee string `json:"fee"`
	Ts  string `json:"ts"`
}

// FetchFees sums trade fees from the account bills over the past days.
// OKX reports fees as negative amounts; the absolute total is returned.
func (s *Source) FetchFees(ctx context.Context, days int) (float64, error) {
	var data []billData
	if err := s.get(ctx, pathBills, "instType=SWAP&type=2&limit=100", true, &data); err != nil {
		return 0, fmt.Errorf("okx bills: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	total := 0.0
	for _, bill := range data {
		ts, err := strconv.ParseInt(bill.Ts, 10, 64)
		if err != nil || ts < cutoff {
			continue
		}
		fee, err := strconv.ParseFloat(bill.Fee, 64)
		if err != nil {
			continue
		}
		if fee < 0 {
			fee = -fee
		}
		total += fee
	}
	return total, nil
}
