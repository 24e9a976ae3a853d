// Package hyperliquid adapts the Hyperliquid DEX to the source contracts.
// All reads go through the public info endpoint keyed by wallet address;
// no signing key is needed.
package hyperliquid

import (
	"context"
	"fmt"
	"strconv"
	"time"

	hl "github.com/sonirico/go-hyperliquid"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Source reads positions and funding history from Hyperliquid. Funding
// settles hourly, so histories are dense compared to the 8-hour venues.
type Source struct {
	info          *hl.Info
	wallet        string
	intervalHours float64
	log           *logger.Log
}

// New builds a Hyperliquid source from the exchange configuration. The
// websocket side of the SDK is skipped; only REST info calls are used.
func New(ctx context.Context, cfg *appconfig.Config) *Source {
	exCfg := cfg.Exchanges.Hyperliquid

	return &Source{
		info:          hl.NewInfo(ctx, exCfg.BaseURL, true, nil, nil),
		wallet:        exCfg.WalletAddress,
		intervalHours: exCfg.IntervalHours,
		log:           logger.GetLogger(),
	}
}

func (s *Source) Name() string { return model.ExchangeHyperliquid }

func (s *Source) FundingIntervalHours() float64 { return s.intervalHours }

// FetchPositions returns all open perpetual positions for the configured
// wallet. Hyperliquid reports signed sizes; a negative szi is a short.
func (s *Source) FetchPositions(ctx context.Context) ([]model.RawPosition, error) {
	state, err := s.info.UserState(ctx, s.wallet)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid user state: %w", err)
	}

	positions := make([]model.RawPosition, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		pos := ap.Position
		size, err := strconv.ParseFloat(pos.Szi, 64)
		if err != nil || size == 0 {
			continue
		}

		entry := 0.0
		if pos.EntryPx != "" {
			entry, _ = strconv.ParseFloat(pos.EntryPx, 64)
		}
		notional, _ := strconv.ParseFloat(pos.PositionValue, 64)
		pnl, _ := strconv.ParseFloat(pos.UnrealizedPnl, 64)

		// The info endpoint reports position value but no mark price.
		mark := 0.0
		if size != 0 {
			abs := size
			if abs < 0 {
				abs = -abs
			}
			mark = notional / abs
		}

		side := model.SideLong
		if size < 0 {
			side = model.SideShort
		}

		positions = append(positions, model.RawPosition{
			Exchange:      model.ExchangeHyperliquid,
			Symbol:        pos.Coin,
			Size:          size,
			Side:          side,
			EntryPrice:    entry,
			CurrentPrice:  mark,
			UnrealizedPnL: pnl,
			Leverage:      float64(pos.Leverage.Value),
			MarginMode:    pos.Leverage.Type,
		})
	}
	return positions, nil
}

// FetchFundingHistory returns hourly funding settlements for the coin
// over the past days, oldest first.
func (s *Source) FetchFundingHistory(ctx context.Context, rawSymbol string, days int) ([]model.FundingRatePoint, error) {
	end := time.Now().UnixMilli()
	start := time.Now().AddDate(0, 0, -days).UnixMilli()

	history, err := s.info.FundingHistory(ctx, rawSymbol, start, &end)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid funding history %s: %w", rawSymbol, err)
	}

	points := make([]model.FundingRatePoint, 0, len(history))
	for _, h := range history {
		rate, err := strconv.ParseFloat(h.FundingRate, 64)
		if err != nil {
			s.log.WithComponent("hyperliquid_source").WithFields(logger.Fields{
				"coin": rawSymbol,
				"rate": h.FundingRate,
			}).Warn("skipping unparsable funding rate")
			continue
		}
		points = append(points, model.FundingRatePoint{
			TimestampMs: h.Time,
			Rate:        rate,
			Symbol:      rawSymbol,
		})
	}
	return points, nil
}
