package model

// Side of a perpetual futures position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Exchange identifiers for all supported venues.
const (
	ExchangeBinance     = "binance"
	ExchangeBybit       = "bybit"
	ExchangeOKX         = "okx"
	ExchangeHyperliquid = "hyperliquid"
	ExchangeRabbitX     = "rabbitx"
)

// Exchanges lists the supported venues in the fixed order used for
// deterministic iteration.
var Exchanges = []string{
	ExchangeBinance,
	ExchangeBybit,
	ExchangeHyperliquid,
	ExchangeOKX,
	ExchangeRabbitX,
}

// RawPosition is a position exactly as a venue reported it. Produced fresh
// on each poll and discarded after aggregation.
type RawPosition struct {
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"`
	Size          float64 `json:"size"`
	Side          Side    `json:"side"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      float64 `json:"leverage"`
	MarginMode    string  `json:"margin_mode"`
}

// Position is the canonical, exchange-agnostic form of a position. Size is
// signed: positive for long, negative for short. The raw symbol is kept for
// follow-up lookups (funding history is keyed by the venue's own ticker).
type Position struct {
	Exchange      string     `json:"exchange"`
	Symbol        string     `json:"symbol"`
	RawSymbol     string     `json:"raw_symbol"`
	Multiplier    float64    `json:"multiplier"`
	Size          float64    `json:"size"`
	EntryPrice    float64    `json:"entry_price"`
	CurrentPrice  float64    `json:"current_price"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	FundingPnL    FundingPnL `json:"funding_pnl"`
	IntervalHours float64    `json:"interval_hours"`
}

// Side derives the position side from the signed size.
func (p Position) Side() Side {
	if p.Size < 0 {
		return SideShort
	}
	return SideLong
}

// Notional is the absolute dollar exposure of the position.
func (p Position) Notional() float64 {
	size := p.Size
	if size < 0 {
		size = -size
	}
	return size * p.CurrentPrice
}

// Delta is the signed dollar exposure: positive when net long.
func (p Position) Delta() float64 {
	return p.Size * p.CurrentPrice
}
