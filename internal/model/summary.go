package model

import "time"

// DeltaExposure aggregates one token's signed dollar exposure across venues.
// TotalDelta always equals the sum of ExchangeDeltas; both are recomputed
// wholesale on every refresh.
type DeltaExposure struct {
	Symbol         string             `json:"symbol"`
	TotalDelta     float64            `json:"total_delta"`
	TotalNotional  float64            `json:"total_notional"`
	FundingPnL     float64            `json:"funding_pnl"`
	ExchangeDeltas map[string]float64 `json:"exchange_deltas"`
}

// ExchangeSummary rolls up one venue's contribution to the snapshot.
type ExchangeSummary struct {
	Exchange      string  `json:"exchange"`
	TotalNotional float64 `json:"total_notional"`
	TotalDelta    float64 `json:"total_delta"`
	FundingPnL    float64 `json:"funding_pnl"`
	Fees          float64 `json:"fees"`
	PositionCount int     `json:"position_count"`
	FetchError    string  `json:"fetch_error,omitempty"`
}

// ArbitrageCandidate flags a token held concurrently on two venues together
// with the observable price and funding spreads between them.
type ArbitrageCandidate struct {
	Symbol           string  `json:"symbol"`
	ExchangeA        string  `json:"exchange_a"`
	ExchangeB        string  `json:"exchange_b"`
	PriceSpreadBps   float64 `json:"price_spread_bps"`
	FundingSpreadBps float64 `json:"funding_spread_bps"`
}

// Snapshot is one complete, immutable refresh result. Each cycle builds a
// fresh snapshot from scratch; the previous one is simply dropped.
type Snapshot struct {
	CycleID         string               `json:"cycle_id"`
	Timestamp       time.Time            `json:"timestamp"`
	WindowDays      int                  `json:"window_days"`
	Positions       []Position           `json:"positions"`
	TokenExposures  []DeltaExposure      `json:"token_exposures"`
	ExchangeSummary []ExchangeSummary    `json:"exchange_summary"`
	Arbitrage       []ArbitrageCandidate `json:"arbitrage"`
	TotalDelta      float64              `json:"total_delta"`
	TotalNotional   float64              `json:"total_notional"`
	TotalFundingPnL float64              `json:"total_funding_pnl"`
	TotalFees       float64              `json:"total_fees"`
}
