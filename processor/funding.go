package processor

import (
	"sort"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Funding settles on a 1h cadence on the DEX venues and 8h on the CEX
// venues. All cross-venue comparisons use the 8h basis.
const (
	baselineIntervalHours = 8.0
	hoursPerYear          = 365 * 24
)

// FundingReconciler turns a position's funding-rate history into a
// funding PnL figure comparable across venues with different settlement
// intervals.
type FundingReconciler struct {
	log *logger.Log
}

func NewFundingReconciler() *FundingReconciler {
	return &FundingReconciler{log: logger.GetLogger()}
}

// Compute derives funding PnL for a position of the given notional and
// side from its funding history over windowDays.
//
// The raw figure uses the venue's native interval: average rate times the
// number of settlement periods in the window, signed so that longs pay
// positive funding and shorts receive it. The normalized figure rescales
// raw to the 8h baseline (raw * interval / 8) and is the only figure APY
// and cross-venue sums may use.
//
// An empty history returns model.ErrFundingUnavailable and a result with
// Available=false; callers must not fold that into aggregates as zero.
func (r *FundingReconciler) Compute(notional float64, side model.Side, history []model.FundingRatePoint, intervalHours float64, windowDays int) (model.FundingPnL, error) {
	if len(history) == 0 {
		return model.FundingPnL{}, model.ErrFundingUnavailable
	}
	if intervalHours <= 0 {
		intervalHours = baselineIntervalHours
	}

	sum := 0.0
	for _, point := range history {
		sum += point.Rate
	}
	avgRate := sum / float64(len(history))

	periods := float64(windowDays) * 24 / intervalHours

	sideMultiplier := 1.0
	if side == model.SideShort {
		sideMultiplier = -1.0
	}

	raw := notional * avgRate * periods * sideMultiplier
	normalized := raw / (baselineIntervalHours / intervalHours)

	apy := 0.0
	if notional != 0 {
		periodsPerYear := hoursPerYear / baselineIntervalHours
		windowPeriods := float64(windowDays) * 24 / baselineIntervalHours
		apy = normalized / notional * (periodsPerYear / windowPeriods) * 100
	}

	return model.FundingPnL{
		Raw:        raw,
		Normalized: normalized,
		APYPct:     apy,
		Available:  true,
	}, nil
}

// Apply computes and attaches funding PnL to the position in place. The
// history is defensively re-sorted by timestamp before use.
func (r *FundingReconciler) Apply(pos *model.Position, history []model.FundingRatePoint, windowDays int) error {
	sorted := SortHistory(history)
	pnl, err := r.Compute(pos.Notional(), pos.Side(), sorted, pos.IntervalHours, windowDays)
	if err != nil {
		return err
	}
	pos.FundingPnL = pnl
	return nil
}

// SortHistory returns a copy of history ordered ascending by timestamp.
// Venues mostly deliver ascending order already, but it is not guaranteed.
func SortHistory(history []model.FundingRatePoint) []model.FundingRatePoint {
	sorted := make([]model.FundingRatePoint, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})
	return sorted
}

// LatestRate returns the most recent rate in history, or 0 for an empty
// history.
func LatestRate(history []model.FundingRatePoint) float64 {
	if len(history) == 0 {
		return 0
	}
	latest := history[0]
	for _, point := range history[1:] {
		if point.TimestampMs > latest.TimestampMs {
			latest = point
		}
	}
	return latest.Rate
}
