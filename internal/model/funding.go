package model

import "errors"

// ErrFundingUnavailable reports that a venue returned no funding history
// for a symbol. Callers must treat this as "no data", never as a zero rate.
var ErrFundingUnavailable = errors.New("funding history unavailable")

// FundingRatePoint is a single funding settlement observation. Rate is
// fractional in the venue's native sign convention.
type FundingRatePoint struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Rate        float64 `json:"rate"`
	Symbol      string  `json:"symbol"`
}

// FundingPnL is the computed funding result for one position over the
// analysis window. Available distinguishes a true zero from missing data so
// the presentation layer can render "N/A" instead of implying zero funding.
type FundingPnL struct {
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
	APYPct     float64 `json:"apy_pct"`
	Available  bool    `json:"available"`
}
