// Package processor holds the pure aggregation core: canonicalizing raw
// venue positions, reconciling funding across interval conventions and
// rolling everything up into cross-exchange summaries. Nothing in this
// package touches the network.
package processor

import (
	"sort"

	"fundingflow/internal/model"
	"fundingflow/internal/symbol"
	"fundingflow/logger"
)

// PositionAggregator converts raw venue positions into the canonical form
// and groups them into per-token exposure rollups.
type PositionAggregator struct {
	log *logger.Log
}

func NewPositionAggregator() *PositionAggregator {
	return &PositionAggregator{log: logger.GetLogger()}
}

// Canonicalize converts one venue's raw positions to canonical Positions.
// Zero-size entries are dropped. Ticker multipliers are folded into size
// and price so canonical positions are always in whole-token units: a
// position of 5 contracts of 1000PEPE at $0.02 becomes 5000 PEPE at
// $0.00002. Notional and delta are unchanged by the fold.
func (a *PositionAggregator) Canonicalize(raws []model.RawPosition, intervalHours float64) []model.Position {
	positions := make([]model.Position, 0, len(raws))
	for _, raw := range raws {
		if raw.Size == 0 {
			continue
		}

		size := raw.Size
		if raw.Side == model.SideShort && size > 0 {
			size = -size
		}
		if raw.Side == model.SideLong && size < 0 {
			size = -size
		}

		canonical := symbol.Normalize(raw.Symbol)
		multiplier := symbol.ExtractMultiplier(raw.Symbol)

		entry := raw.EntryPrice
		current := raw.CurrentPrice
		if multiplier != 1 {
			size *= multiplier
			entry /= multiplier
			current /= multiplier
		}

		positions = append(positions, model.Position{
			Exchange:      raw.Exchange,
			Symbol:        canonical,
			RawSymbol:     raw.Symbol,
			Multiplier:    multiplier,
			Size:          size,
			EntryPrice:    entry,
			CurrentPrice:  current,
			UnrealizedPnL: raw.UnrealizedPnL,
			IntervalHours: intervalHours,
		})
	}
	return positions
}

// TokenRollups groups canonical positions from all venues by token and
// sums signed deltas, notionals and normalized funding per token, keeping
// the per-exchange delta breakdown. The result is sorted by descending
// absolute total delta. Positions without funding data contribute zero to
// the token's funding sum but still count toward delta and notional.
func (a *PositionAggregator) TokenRollups(positions []model.Position) []model.DeltaExposure {
	byToken := make(map[string]*model.DeltaExposure)
	for _, pos := range positions {
		exposure, ok := byToken[pos.Symbol]
		if !ok {
			exposure = &model.DeltaExposure{
				Symbol:         pos.Symbol,
				ExchangeDeltas: make(map[string]float64),
			}
			byToken[pos.Symbol] = exposure
		}
		delta := pos.Delta()
		exposure.TotalDelta += delta
		exposure.TotalNotional += pos.Notional()
		exposure.ExchangeDeltas[pos.Exchange] += delta
		if pos.FundingPnL.Available {
			exposure.FundingPnL += pos.FundingPnL.Normalized
		}
	}

	rollups := make([]model.DeltaExposure, 0, len(byToken))
	for _, exposure := range byToken {
		rollups = append(rollups, *exposure)
	}
	sort.Slice(rollups, func(i, j int) bool {
		di, dj := rollups[i].TotalDelta, rollups[j].TotalDelta
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		if di != dj {
			return di > dj
		}
		return rollups[i].Symbol < rollups[j].Symbol
	})
	return rollups
}
