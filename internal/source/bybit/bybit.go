// Package bybit adapts Bybit v5 unified-account linear perpetuals to the
// source contracts.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

const (
	categoryLinear      = "linear"
	fundingHistoryLimit = 200
)

// Source reads positions, funding history and fees from Bybit's v5 API.
type Source struct {
	client        *bybit.Client
	intervalHours float64
	log           *logger.Log
}

// New builds a Bybit source from the exchange configuration.
func New(cfg *appconfig.Config) *Source {
	exCfg := cfg.Exchanges.Bybit

	baseURL := exCfg.BaseURL
	if baseURL == "" {
		baseURL = bybit.MAINNET
	}
	client := bybit.NewBybitHttpClient(exCfg.APIKey, exCfg.Secret, bybit.WithBaseURL(baseURL))

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.Pool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.Pool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.Pool.IdleConnTimeout,
	}
	client.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout}

	return &Source{
		client:        client,
		intervalHours: exCfg.IntervalHours,
		log:           logger.GetLogger(),
	}
}

func (s *Source) Name() string { return model.ExchangeBybit }

func (s *Source) FundingIntervalHours() float64 { return s.intervalHours }

type positionList struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		AvgPrice      string `json:"avgPrice"`
		MarkPrice     string `json:"markPrice"`
		UnrealisedPnl string `json:"unrealisedPnl"`
		Leverage      string `json:"leverage"`
		TradeMode     int    `json:"tradeMode"`
	} `json:"list"`
}

// FetchPositions returns all open linear perpetual positions settled in USDT.
func (s *Source) FetchPositions(ctx context.Context) ([]model.RawPosition, error) {
	params := map[string]interface{}{
		"category":   categoryLinear,
		"settleCoin": "USDT",
	}
	resp, err := s.client.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("bybit position list: %w", err)
	}
	var result positionList
	if err := decodeResult(resp, &result); err != nil {
		return nil, fmt.Errorf("bybit position list: %w", err)
	}

	positions := make([]model.RawPosition, 0, len(result.List))
	for _, p := range result.List {
		size, err := strconv.ParseFloat(p.Size, 64)
		if err != nil || size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnrealisedPnl, 64)
		leverage, _ := strconv.ParseFloat(p.Leverage, 64)

		side := model.SideLong
		if p.Side == "Sell" {
			side = model.SideShort
			size = -size
		}

		marginMode := "cross"
		if p.TradeMode == 1 {
			marginMode = "isolated"
		}

		positions = append(positions, model.RawPosition{
			Exchange:      model.ExchangeBybit,
			Symbol:        p.Symbol,
			Size:          size,
			Side:          side,
			EntryPrice:    entry,
			CurrentPrice:  mark,
			UnrealizedPnL: pnl,
			Leverage:      leverage,
			MarginMode:    marginMode,
		})
	}
	return positions, nil
}

type fundingRateList struct {
	List []struct {
		Symbol               string `json:"symbol"`
		FundingRate          string `json:"fundingRate"`
		FundingRateTimestamp string `json:"fundingRateTimestamp"`
	} `json:"list"`
}

// FetchFundingHistory returns funding settlements for rawSymbol over the
// past days, oldest first. Bybit returns newest first; the order is
// reversed here.
func (s *Source) FetchFundingHistory(ctx context.Context, rawSymbol string, days int) ([]model.FundingRatePoint, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	params := map[string]interface{}{
		"category":  categoryLinear,
		"symbol":    rawSymbol,
		"startTime": start.UnixMilli(),
		"endTime":   end.UnixMilli(),
		"limit":     fundingHistoryLimit,
	}
	resp, err := s.client.NewUtaBybitServiceWithParams(params).GetFundingRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("bybit funding history %s: %w", rawSymbol, err)
	}
	var result fundingRateList
	if err := decodeResult(resp, &result); err != nil {
		return nil, fmt.Errorf("bybit funding history %s: %w", rawSymbol, err)
	}

	points := make([]model.FundingRatePoint, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		item := result.List[i]
		rate, err := strconv.ParseFloat(item.FundingRate, 64)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(item.FundingRateTimestamp, 10, 64)
		if err != nil {
			continue
		}
		points = append(points, model.FundingRatePoint{
			TimestampMs: ts,
			Rate:        rate,
			Symbol:      rawSymbol,
		})
	}
	return points, nil
}

type transactionLog struct {
	List []struct {
		Type string `json:"type"`
		Fee  string `json:"fee"`
	} `json:"list"`
}

// FetchFees sums trading fees from the unified-account transaction log
// over the past days.
func (s *Source) FetchFees(ctx context.Context, days int) (float64, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"category":    categoryLinear,
		"type":        "TRADE",
		"startTime":   start.UnixMilli(),
		"endTime":     end.UnixMilli(),
		"limit":       50,
	}
	resp, err := s.client.NewUtaBybitServiceWithParams(params).GetTransactionLog(ctx)
	if err != nil {
		return 0, fmt.Errorf("bybit transaction log: %w", err)
	}
	var result transactionLog
	if err := decodeResult(resp, &result); err != nil {
		return 0, fmt.Errorf("bybit transaction log: %w", err)
	}

	total := 0.0
	for _, item := range result.List {
		fee, err := strconv.ParseFloat(item.Fee, 64)
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

// decodeResult re-marshals the untyped Result payload of a v5 response
// into the given typed struct.
func decodeResult(resp *bybit.ServerResponse, out interface{}) error {
	if resp == nil {
		return fmt.Errorf("empty response")
	}
	if resp.RetCode != 0 {
		return fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
