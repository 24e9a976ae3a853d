package dashboard

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/source"
)

type stubSource struct {
	name          string
	interval      float64
	positions     []model.RawPosition
	history       []model.FundingRatePoint
	fees          float64
	posErr        error
	positionCalls int
	fundingCalls  int
}

func (s *stubSource) Name() string                  { return s.name }
func (s *stubSource) FundingIntervalHours() float64 { return s.interval }

func (s *stubSource) FetchPositions(context.Context) ([]model.RawPosition, error) {
	s.positionCalls++
	if s.posErr != nil {
		return nil, s.posErr
	}
	return s.positions, nil
}

func (s *stubSource) FetchFundingHistory(context.Context, string, int) ([]model.FundingRatePoint, error) {
	s.fundingCalls++
	return s.history, nil
}

func (s *stubSource) FetchFees(context.Context, int) (float64, error) {
	return s.fees, nil
}

func testConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Dashboard.RefreshInterval = time.Minute
	cfg.Dashboard.WindowDays = 7
	cfg.Dashboard.ArbLookbackDays = 1
	cfg.Dashboard.TopPositions = 5
	cfg.Cache.PositionsTTL = time.Minute
	cfg.Cache.FundingTTL = 5 * time.Minute
	cfg.Cache.JanitorInterval = time.Minute
	return cfg
}

func flatHistory(rate float64, n int) []model.FundingRatePoint {
	points := make([]model.FundingRatePoint, n)
	for i := range points {
		points[i] = model.FundingRatePoint{TimestampMs: int64(i+1) * 1000, Rate: rate}
	}
	return points
}

func newTestEngine(t *testing.T, sources ...source.Source) *Engine {
	t.Helper()
	registry := source.NewRegistry()
	for _, s := range sources {
		if err := registry.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name(), err)
		}
	}
	return NewEngine(testConfig(), registry, nil, nil)
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	binance := &stubSource{
		name:     model.ExchangeBinance,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBinance, Symbol: "BTCUSDT", Size: 0.1, Side: model.SideLong, CurrentPrice: 100000},
		},
		history: flatHistory(0.0001, 21),
		fees:    3.5,
	}
	engine := newTestEngine(t, binance)

	snap, fetchErrors := engine.Refresh(context.Background())
	if fetchErrors != 0 {
		t.Fatalf("fetch errors = %d, want 0", fetchErrors)
	}
	if snap.CycleID == "" {
		t.Fatalf("missing cycle id")
	}
	if len(snap.Positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(snap.Positions))
	}
	pos := snap.Positions[0]
	if pos.Symbol != "BTC" {
		t.Fatalf("symbol = %q, want BTC", pos.Symbol)
	}
	if !pos.FundingPnL.Available {
		t.Fatalf("funding not computed")
	}
	// $10,000 notional, 0.0001 avg rate, 21 periods of 8h in 7 days.
	if math.Abs(pos.FundingPnL.Raw-21.0) > 1e-9 {
		t.Fatalf("funding raw = %v, want 21.0", pos.FundingPnL.Raw)
	}
	if math.Abs(snap.TotalFundingPnL-21.0) > 1e-9 {
		t.Fatalf("total funding = %v, want 21.0", snap.TotalFundingPnL)
	}
	if math.Abs(snap.TotalFees-3.5) > 1e-9 {
		t.Fatalf("total fees = %v, want 3.5", snap.TotalFees)
	}
	if engine.Snapshot() != snap {
		t.Fatalf("snapshot accessor does not return the latest snapshot")
	}
}

func TestRefreshIsolatesFailingVenue(t *testing.T) {
	binance := &stubSource{
		name:     model.ExchangeBinance,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBinance, Symbol: "ETHUSDT", Size: 2, Side: model.SideLong, CurrentPrice: 4000},
		},
		history: flatHistory(0.0001, 21),
	}
	okx := &stubSource{
		name:     model.ExchangeOKX,
		interval: 8,
		posErr:   errors.New("auth failed"),
	}
	engine := newTestEngine(t, binance, okx)

	snap, fetchErrors := engine.Refresh(context.Background())
	if fetchErrors != 1 {
		t.Fatalf("fetch errors = %d, want 1", fetchErrors)
	}
	if len(snap.Positions) != 1 {
		t.Fatalf("healthy venue positions lost: got %d, want 1", len(snap.Positions))
	}
	var okxSummary *model.ExchangeSummary
	for i := range snap.ExchangeSummary {
		if snap.ExchangeSummary[i].Exchange == model.ExchangeOKX {
			okxSummary = &snap.ExchangeSummary[i]
		}
	}
	if okxSummary == nil {
		t.Fatalf("failing venue missing from summary")
	}
	if okxSummary.FetchError == "" || okxSummary.PositionCount != 0 {
		t.Fatalf("failing venue should surface an empty row with an error, got %+v", okxSummary)
	}
}

func TestRefreshServesFromCache(t *testing.T) {
	binance := &stubSource{
		name:     model.ExchangeBinance,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBinance, Symbol: "BTCUSDT", Size: 0.1, Side: model.SideLong, CurrentPrice: 100000},
		},
		history: flatHistory(0.0001, 21),
	}
	engine := newTestEngine(t, binance)

	engine.Refresh(context.Background())
	engine.Refresh(context.Background())
	if binance.positionCalls != 1 {
		t.Fatalf("position calls = %d, want 1 (second refresh should hit cache)", binance.positionCalls)
	}
	// One call for the PnL window, one for the arbitrage lookback. The
	// second refresh is served from cache entirely.
	if binance.fundingCalls > 2 {
		t.Fatalf("funding calls = %d, want at most 2", binance.fundingCalls)
	}
}

func TestRefreshDetectsArbitrage(t *testing.T) {
	binance := &stubSource{
		name:     model.ExchangeBinance,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBinance, Symbol: "BTCUSDT", Size: 1, Side: model.SideLong, CurrentPrice: 100000},
		},
		history: flatHistory(0.0001, 21),
	}
	bybit := &stubSource{
		name:     model.ExchangeBybit,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBybit, Symbol: "BTCUSDT", Size: -1, Side: model.SideShort, CurrentPrice: 100050},
		},
		history: flatHistory(0.0003, 21),
	}
	engine := newTestEngine(t, binance, bybit)

	snap, _ := engine.Refresh(context.Background())
	if len(snap.Arbitrage) != 1 {
		t.Fatalf("got %d candidates, want 1", len(snap.Arbitrage))
	}
	c := snap.Arbitrage[0]
	if math.Abs(c.PriceSpreadBps-5.0) > 0.01 {
		t.Fatalf("price spread = %v bps, want ~5.0", c.PriceSpreadBps)
	}
	if math.Abs(c.FundingSpreadBps-2.0) > 1e-9 {
		t.Fatalf("funding spread = %v bps, want 2.0", c.FundingSpreadBps)
	}
	// Delta-neutral book: total delta nets out, notional does not.
	if math.Abs(snap.TotalDelta-(-50)) > 1e-9 {
		t.Fatalf("total delta = %v, want -50", snap.TotalDelta)
	}
	if snap.TotalNotional < 200000 {
		t.Fatalf("total notional = %v, want > 200000", snap.TotalNotional)
	}
}

func TestTopPositions(t *testing.T) {
	binance := &stubSource{
		name:     model.ExchangeBinance,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBinance, Symbol: "BTCUSDT", Size: 1, Side: model.SideLong, CurrentPrice: 100000},
			{Exchange: model.ExchangeBinance, Symbol: "ETHUSDT", Size: -100, Side: model.SideShort, CurrentPrice: 4000},
			{Exchange: model.ExchangeBinance, Symbol: "SOLUSDT", Size: 10, Side: model.SideLong, CurrentPrice: 200},
		},
		history: flatHistory(0.0001, 21),
	}
	engine := newTestEngine(t, binance)
	if got := engine.TopPositions(2); got != nil {
		t.Fatalf("top positions before first refresh = %v, want nil", got)
	}

	engine.Refresh(context.Background())
	top := engine.TopPositions(2)
	if len(top) != 2 {
		t.Fatalf("got %d positions, want 2", len(top))
	}
	if top[0].Symbol != "ETH" || top[1].Symbol != "BTC" {
		t.Fatalf("top order = %s, %s; want ETH, BTC", top[0].Symbol, top[1].Symbol)
	}
}

func TestTopFundingEarnersExcludesUnavailable(t *testing.T) {
	binance := &stubSource{
		name:     model.ExchangeBinance,
		interval: 8,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeBinance, Symbol: "BTCUSDT", Size: 0.1, Side: model.SideLong, CurrentPrice: 100000},
		},
		history: flatHistory(0.0001, 21),
	}
	hyperliquid := &stubSource{
		name:     model.ExchangeHyperliquid,
		interval: 1,
		positions: []model.RawPosition{
			{Exchange: model.ExchangeHyperliquid, Symbol: "SOL", Size: 10, Side: model.SideLong, CurrentPrice: 200},
		},
		history: nil, // no funding data on this venue
	}
	engine := newTestEngine(t, binance, hyperliquid)

	engine.Refresh(context.Background())
	earners := engine.TopFundingEarners(5)
	if len(earners) != 1 {
		t.Fatalf("got %d earners, want 1", len(earners))
	}
	if earners[0].Symbol != "BTC" {
		t.Fatalf("earner = %s, want BTC", earners[0].Symbol)
	}
}

func TestAccessorsBeforeFirstRefresh(t *testing.T) {
	engine := newTestEngine(t)
	if engine.Snapshot() != nil {
		t.Fatalf("snapshot should be nil before first refresh")
	}
	if engine.PerTokenDeltaExposure() != nil || engine.PerExchangeSummary() != nil || engine.ArbitrageCandidates() != nil {
		t.Fatalf("accessors should return nil before first refresh")
	}
}
