// Package dashboard drives the refresh loop: fan out to every registered
// venue, reconcile funding, roll up exposures and publish one immutable
// snapshot per cycle for the presentation layer to read.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "fundingflow/config"
	"fundingflow/internal/cache"
	"fundingflow/internal/model"
	"fundingflow/internal/source"
	"fundingflow/logger"
	"fundingflow/processor"
)

// Archiver persists finished snapshots. Archiving is best effort; a
// failure never blocks the refresh cycle.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, snap *model.Snapshot) error
}

// MetricsPublisher receives one observation per completed refresh.
type MetricsPublisher interface {
	EmitRefresh(ctx context.Context, snap *model.Snapshot, duration time.Duration, fetchErrors int)
}

// Engine owns the refresh cycle. Every cycle builds a fresh snapshot from
// scratch; readers always see either the previous complete snapshot or
// the new one, never a partial state.
type Engine struct {
	config     *appconfig.Config
	registry   *source.Registry
	aggregator *processor.PositionAggregator
	reconciler *processor.FundingReconciler
	summarizer *processor.Summarizer
	cache      *cache.Cache
	metrics    MetricsPublisher
	archiver   Archiver
	log        *logger.Log

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool

	snapMu   sync.RWMutex
	snapshot *model.Snapshot
}

// NewEngine wires the aggregation pipeline. metrics and archiver may be
// nil when those outputs are disabled.
func NewEngine(cfg *appconfig.Config, registry *source.Registry, metrics MetricsPublisher, archiver Archiver) *Engine {
	return &Engine{
		config:     cfg,
		registry:   registry,
		aggregator: processor.NewPositionAggregator(),
		reconciler: processor.NewFundingReconciler(),
		summarizer: processor.NewSummarizer(),
		cache:      cache.New(),
		metrics:    metrics,
		archiver:   archiver,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
	}
}

// Start runs an immediate refresh and then keeps refreshing on the
// configured interval until the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("engine").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"exchanges":        e.registry.Names(),
		"refresh_interval": e.config.Dashboard.RefreshInterval.String(),
		"window_days":      e.config.Dashboard.WindowDays,
	}).Info("starting dashboard engine")

	e.cache.StartJanitor(ctx, e.config.Cache.JanitorInterval)

	e.wg.Add(1)
	go e.refreshLoop()

	log.Info("dashboard engine started")
	return nil
}

// Stop waits for the refresh loop to exit. The context passed to Start
// must be cancelled first.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("engine").Info("stopping dashboard engine")
	e.wg.Wait()
	e.log.WithComponent("engine").Info("dashboard engine stopped")
}

func (e *Engine) refreshLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Dashboard.RefreshInterval)
	defer ticker.Stop()

	e.runRefresh()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runRefresh()
		}
	}
}

func (e *Engine) runRefresh() {
	start := time.Now()
	snap, fetchErrors := e.Refresh(e.ctx)
	duration := time.Since(start)

	log := e.log.WithComponent("engine").WithFields(logger.Fields{"operation": "refresh"})
	logger.LogPerformanceEntry(log, "engine", "refresh", duration, logger.Fields{
		"cycle_id":     snap.CycleID,
		"positions":    len(snap.Positions),
		"tokens":       len(snap.TokenExposures),
		"arbitrage":    len(snap.Arbitrage),
		"fetch_errors": fetchErrors,
	})

	if e.metrics != nil {
		e.metrics.EmitRefresh(e.ctx, snap, duration, fetchErrors)
	}
	if e.archiver != nil {
		if err := e.archiver.ArchiveSnapshot(e.ctx, snap); err != nil {
			log.WithError(err).Warn("snapshot archive failed")
		}
	}
}

// exchangeResult carries one venue's contribution out of its fetch task.
// Tasks share nothing; results are merged only after every task is done.
type exchangeResult struct {
	exchange  string
	positions []model.Position
	fees      float64
	hasFees   bool
	err       error
}

// Refresh builds a complete snapshot: positions, funding, fees, token
// rollups, per-venue summaries and arbitrage candidates. A failing venue
// contributes an empty result set and an error marker; it never aborts
// the cycle. The returned count is the number of venues that failed.
func (e *Engine) Refresh(ctx context.Context) (*model.Snapshot, int) {
	names := e.registry.Names()
	results := make(chan exchangeResult, len(names))

	var fetchWg sync.WaitGroup
	for _, name := range names {
		src, _ := e.registry.Get(name)
		fetchWg.Add(1)
		go func(name string, src source.Source) {
			defer fetchWg.Done()
			results <- e.fetchExchange(ctx, name, src)
		}(name, src)
	}
	fetchWg.Wait()
	close(results)

	var positions []model.Position
	fees := make(map[string]float64)
	fetchErrors := make(map[string]error)
	for result := range results {
		if result.err != nil {
			fetchErrors[result.exchange] = result.err
			continue
		}
		positions = append(positions, result.positions...)
		if result.hasFees {
			fees[result.exchange] = result.fees
		}
	}

	// Deterministic order regardless of task completion order.
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Exchange != positions[j].Exchange {
			return positions[i].Exchange < positions[j].Exchange
		}
		return positions[i].Symbol < positions[j].Symbol
	})

	rollups := e.aggregator.TokenRollups(positions)
	summaries := e.summarizer.ExchangeSummaries(names, positions, fees, fetchErrors)
	arbitrage := e.summarizer.ArbitrageCandidates(positions, e.latestRate)

	snap := &model.Snapshot{
		CycleID:         uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		WindowDays:      e.config.Dashboard.WindowDays,
		Positions:       positions,
		TokenExposures:  rollups,
		ExchangeSummary: summaries,
		Arbitrage:       arbitrage,
	}
	for _, pos := range positions {
		snap.TotalDelta += pos.Delta()
		snap.TotalNotional += pos.Notional()
		if pos.FundingPnL.Available {
			snap.TotalFundingPnL += pos.FundingPnL.Normalized
		}
	}
	for _, fee := range fees {
		snap.TotalFees += fee
	}

	e.snapMu.Lock()
	e.snapshot = snap
	e.snapMu.Unlock()

	return snap, len(fetchErrors)
}

// fetchExchange runs one venue's full pipeline: positions, funding per
// position and fees. Funding failures only cost that position its funding
// figure; a position fetch failure fails the whole venue.
func (e *Engine) fetchExchange(ctx context.Context, name string, src source.Source) exchangeResult {
	log := e.log.WithComponent("engine").WithFields(logger.Fields{"exchange": name})

	raws, err := e.cachedPositions(ctx, name, src)
	if err != nil {
		log.WithError(err).Error("position fetch failed")
		return exchangeResult{exchange: name, err: err}
	}

	positions := e.aggregator.Canonicalize(raws, src.FundingIntervalHours())
	windowDays := e.config.Dashboard.WindowDays
	for i := range positions {
		history, err := e.cachedFundingHistory(ctx, name, src, positions[i].RawSymbol, windowDays)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"symbol": positions[i].Symbol,
			}).Warn("funding history fetch failed, position excluded from funding aggregates")
			continue
		}
		if err := e.reconciler.Apply(&positions[i], history, windowDays); err != nil {
			log.WithFields(logger.Fields{
				"symbol": positions[i].Symbol,
			}).Info("no funding data for symbol")
		}
	}

	result := exchangeResult{exchange: name, positions: positions}
	if feeSource, ok := src.(source.FeeSource); ok {
		feeTotal, err := feeSource.FetchFees(ctx, windowDays)
		if err != nil {
			log.WithError(err).Warn("fee fetch failed")
		} else {
			result.fees = feeTotal
			result.hasFees = true
		}
	}
	return result
}

func (e *Engine) cachedPositions(ctx context.Context, name string, src source.Source) ([]model.RawPosition, error) {
	key := "positions:" + name
	if v, ok := e.cache.Get(key); ok {
		return v.([]model.RawPosition), nil
	}
	raws, err := src.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, raws, e.config.Cache.PositionsTTL)
	return raws, nil
}

func (e *Engine) cachedFundingHistory(ctx context.Context, name string, src source.Source, rawSymbol string, days int) ([]model.FundingRatePoint, error) {
	key := fmt.Sprintf("funding:%s:%s:%d", name, rawSymbol, days)
	if v, ok := e.cache.Get(key); ok {
		return v.([]model.FundingRatePoint), nil
	}
	history, err := src.FetchFundingHistory(ctx, rawSymbol, days)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, history, e.config.Cache.FundingTTL)
	return history, nil
}

// latestRate serves the summarizer's spread computation with the most
// recent funding rate on a short lookback window.
func (e *Engine) latestRate(exchange, rawSymbol string) (float64, error) {
	src, ok := e.registry.Get(exchange)
	if !ok {
		return 0, fmt.Errorf("unknown exchange %q", exchange)
	}
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	history, err := e.cachedFundingHistory(ctx, exchange, src, rawSymbol, e.config.Dashboard.ArbLookbackDays)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, model.ErrFundingUnavailable
	}
	return processor.LatestRate(history), nil
}

// Snapshot returns the latest complete snapshot, nil before the first
// refresh finishes.
func (e *Engine) Snapshot() *model.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}

// PerTokenDeltaExposure returns the per-token rollups of the latest
// snapshot, sorted by descending absolute total delta.
func (e *Engine) PerTokenDeltaExposure() []model.DeltaExposure {
	if snap := e.Snapshot(); snap != nil {
		return snap.TokenExposures
	}
	return nil
}

// PerExchangeSummary returns the per-venue rollups of the latest snapshot.
func (e *Engine) PerExchangeSummary() []model.ExchangeSummary {
	if snap := e.Snapshot(); snap != nil {
		return snap.ExchangeSummary
	}
	return nil
}

// ArbitrageCandidates returns the arbitrage candidates of the latest
// snapshot.
func (e *Engine) ArbitrageCandidates() []model.ArbitrageCandidate {
	if snap := e.Snapshot(); snap != nil {
		return snap.Arbitrage
	}
	return nil
}

// Positions returns the canonical positions of the latest snapshot.
func (e *Engine) Positions() []model.Position {
	if snap := e.Snapshot(); snap != nil {
		return snap.Positions
	}
	return nil
}

// TopPositions returns the n largest positions of the latest snapshot by
// absolute dollar delta.
func (e *Engine) TopPositions(n int) []model.Position {
	snap := e.Snapshot()
	if snap == nil || n <= 0 {
		return nil
	}
	positions := make([]model.Position, len(snap.Positions))
	copy(positions, snap.Positions)
	sort.Slice(positions, func(i, j int) bool {
		di, dj := positions[i].Delta(), positions[j].Delta()
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		return di > dj
	})
	if len(positions) > n {
		positions = positions[:n]
	}
	return positions
}

// TopFundingEarners returns the n positions with the highest normalized
// funding PnL. Positions without funding data are excluded.
func (e *Engine) TopFundingEarners(n int) []model.Position {
	snap := e.Snapshot()
	if snap == nil || n <= 0 {
		return nil
	}
	earners := make([]model.Position, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		if pos.FundingPnL.Available {
			earners = append(earners, pos)
		}
	}
	sort.Slice(earners, func(i, j int) bool {
		return earners[i].FundingPnL.Normalized > earners[j].FundingPnL.Normalized
	})
	if len(earners) > n {
		earners = earners[:n]
	}
	return earners
}
