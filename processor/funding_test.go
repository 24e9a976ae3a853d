package processor

import (
	"errors"
	"testing"

	"fundingflow/internal/model"
)

func flatHistory(rate float64, n int) []model.FundingRatePoint {
	points := make([]model.FundingRatePoint, n)
	for i := range points {
		points[i] = model.FundingRatePoint{TimestampMs: int64(i) * 1000, Rate: rate}
	}
	return points
}

func TestComputeEightHourWindow(t *testing.T) {
	r := NewFundingReconciler()
	// $10,000 long, 0.0001 average rate, 8h interval, 7 days: 21 periods.
	pnl, err := r.Compute(10000, model.SideLong, flatHistory(0.0001, 21), 8, 7)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !pnl.Available {
		t.Fatalf("expected available funding")
	}
	if !almostEqual(pnl.Raw, 21.0, 1e-9) {
		t.Fatalf("raw = %v, want 21.0", pnl.Raw)
	}
	// At the 8h baseline raw and normalized coincide.
	if !almostEqual(pnl.Normalized, pnl.Raw, 1e-9) {
		t.Fatalf("normalized = %v, want %v", pnl.Normalized, pnl.Raw)
	}
	if !almostEqual(pnl.APYPct, 10.95, 1e-6) {
		t.Fatalf("apy = %v, want 10.95", pnl.APYPct)
	}
}

func TestComputeHourlyNormalization(t *testing.T) {
	r := NewFundingReconciler()
	raw8, err := r.Compute(10000, model.SideLong, flatHistory(0.0001, 21), 8, 7)
	if err != nil {
		t.Fatalf("compute 8h: %v", err)
	}
	raw1, err := r.Compute(10000, model.SideLong, flatHistory(0.0001, 168), 1, 7)
	if err != nil {
		t.Fatalf("compute 1h: %v", err)
	}
	// 168 hourly periods accumulate 8x the raw PnL of 21 8h periods.
	if !almostEqual(raw1.Raw, 168.0, 1e-9) {
		t.Fatalf("hourly raw = %v, want 168.0", raw1.Raw)
	}
	if !almostEqual(raw1.Normalized, raw1.Raw/8, 1e-9) {
		t.Fatalf("hourly normalized = %v, want raw/8 = %v", raw1.Normalized, raw1.Raw/8)
	}
	// After normalization both venues report the same comparable figure.
	if !almostEqual(raw1.Normalized, raw8.Normalized, 1e-9) {
		t.Fatalf("normalized mismatch: 1h %v vs 8h %v", raw1.Normalized, raw8.Normalized)
	}
	if !almostEqual(raw1.APYPct, raw8.APYPct, 1e-9) {
		t.Fatalf("apy mismatch: 1h %v vs 8h %v", raw1.APYPct, raw8.APYPct)
	}
}

func TestComputeShortInvertsSign(t *testing.T) {
	r := NewFundingReconciler()
	long, _ := r.Compute(10000, model.SideLong, flatHistory(0.0001, 21), 8, 7)
	short, _ := r.Compute(10000, model.SideShort, flatHistory(0.0001, 21), 8, 7)
	if !almostEqual(short.Raw, -long.Raw, 1e-9) {
		t.Fatalf("short raw = %v, want %v", short.Raw, -long.Raw)
	}
}

func TestComputeEmptyHistoryUnavailable(t *testing.T) {
	r := NewFundingReconciler()
	pnl, err := r.Compute(10000, model.SideLong, nil, 8, 7)
	if !errors.Is(err, model.ErrFundingUnavailable) {
		t.Fatalf("err = %v, want ErrFundingUnavailable", err)
	}
	if pnl.Available {
		t.Fatalf("empty history must not report available funding")
	}
}

func TestComputeZeroNotional(t *testing.T) {
	r := NewFundingReconciler()
	pnl, err := r.Compute(0, model.SideLong, flatHistory(0.0001, 21), 8, 7)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if pnl.APYPct != 0 {
		t.Fatalf("apy = %v, want 0 for zero notional", pnl.APYPct)
	}
}

func TestSortHistoryAndLatestRate(t *testing.T) {
	history := []model.FundingRatePoint{
		{TimestampMs: 3000, Rate: 0.0003},
		{TimestampMs: 1000, Rate: 0.0001},
		{TimestampMs: 2000, Rate: 0.0002},
	}
	sorted := SortHistory(history)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].TimestampMs > sorted[i].TimestampMs {
			t.Fatalf("history not ascending at %d: %v", i, sorted)
		}
	}
	// Input slice stays untouched.
	if history[0].TimestampMs != 3000 {
		t.Fatalf("input mutated: %v", history)
	}
	if rate := LatestRate(history); !almostEqual(rate, 0.0003, 1e-12) {
		t.Fatalf("latest rate = %v, want 0.0003", rate)
	}
	if rate := LatestRate(nil); rate != 0 {
		t.Fatalf("latest rate of empty history = %v, want 0", rate)
	}
}

func TestApplyAttachesFunding(t *testing.T) {
	r := NewFundingReconciler()
	pos := model.Position{
		Exchange:      model.ExchangeBinance,
		Symbol:        "BTC",
		Size:          0.1,
		CurrentPrice:  100000,
		IntervalHours: 8,
	}
	if err := r.Apply(&pos, flatHistory(0.0001, 21), 7); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !pos.FundingPnL.Available {
		t.Fatalf("funding not attached")
	}
	if !almostEqual(pos.FundingPnL.Raw, 10000*0.0001*21, 1e-9) {
		t.Fatalf("raw = %v, want 21.0", pos.FundingPnL.Raw)
	}
}
