package processor

import (
	"sort"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

const bpsFactor = 10000.0

// RateLookup returns the most recent funding rate for a raw symbol on one
// venue. Implementations are expected to serve from cache; errors are
// isolated per call by the summarizer.
type RateLookup func(exchange, rawSymbol string) (float64, error)

// Summarizer builds the per-exchange rollups and the arbitrage candidate
// list from canonical positions.
type Summarizer struct {
	log *logger.Log
}

func NewSummarizer() *Summarizer {
	return &Summarizer{log: logger.GetLogger()}
}

// ExchangeSummaries rolls up notional, delta, funding, fees and position
// count per venue. Every registered venue gets a row even when it holds
// nothing, so a fetch failure shows up as an empty row with the error
// attached rather than a silently missing venue. Rows are ordered by
// exchange name.
func (s *Summarizer) ExchangeSummaries(exchanges []string, positions []model.Position, fees map[string]float64, fetchErrors map[string]error) []model.ExchangeSummary {
	byExchange := make(map[string]*model.ExchangeSummary, len(exchanges))
	for _, name := range exchanges {
		byExchange[name] = &model.ExchangeSummary{Exchange: name}
	}

	for _, pos := range positions {
		summary, ok := byExchange[pos.Exchange]
		if !ok {
			summary = &model.ExchangeSummary{Exchange: pos.Exchange}
			byExchange[pos.Exchange] = summary
		}
		summary.TotalNotional += pos.Notional()
		summary.TotalDelta += pos.Delta()
		summary.PositionCount++
		if pos.FundingPnL.Available {
			summary.FundingPnL += pos.FundingPnL.Normalized
		}
	}

	for name, fee := range fees {
		if summary, ok := byExchange[name]; ok {
			summary.Fees = fee
		}
	}
	for name, err := range fetchErrors {
		if summary, ok := byExchange[name]; ok && err != nil {
			summary.FetchError = err.Error()
		}
	}

	summaries := make([]model.ExchangeSummary, 0, len(byExchange))
	for _, summary := range byExchange {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Exchange < summaries[j].Exchange
	})
	return summaries
}

// ArbitrageCandidates finds tokens held on two or more venues at once and
// computes the price and funding spreads for every unordered venue pair.
// Pairs are emitted in alphabetical order for reproducible output. A rate
// lookup failure zeroes the funding spread for that pair only.
func (s *Summarizer) ArbitrageCandidates(positions []model.Position, lookup RateLookup) []model.ArbitrageCandidate {
	type venuePosition struct {
		price     float64
		rawSymbol string
	}
	byToken := make(map[string]map[string]venuePosition)
	for _, pos := range positions {
		venues, ok := byToken[pos.Symbol]
		if !ok {
			venues = make(map[string]venuePosition)
			byToken[pos.Symbol] = venues
		}
		if _, seen := venues[pos.Exchange]; !seen {
			venues[pos.Exchange] = venuePosition{price: pos.CurrentPrice, rawSymbol: pos.RawSymbol}
		}
	}

	tokens := make([]string, 0, len(byToken))
	for token, venues := range byToken {
		if len(venues) >= 2 {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)

	var candidates []model.ArbitrageCandidate
	for _, token := range tokens {
		venues := byToken[token]
		names := make([]string, 0, len(venues))
		for name := range venues {
			names = append(names, name)
		}
		sort.Strings(names)

		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				a, b := venues[names[i]], venues[names[j]]

				priceSpread := 0.0
				minPrice := a.price
				if b.price < minPrice {
					minPrice = b.price
				}
				if minPrice > 0 {
					diff := a.price - b.price
					if diff < 0 {
						diff = -diff
					}
					priceSpread = diff / minPrice * bpsFactor
				}

				fundingSpread := s.fundingSpread(token, names[i], a.rawSymbol, names[j], b.rawSymbol, lookup)

				candidates = append(candidates, model.ArbitrageCandidate{
					Symbol:           token,
					ExchangeA:        names[i],
					ExchangeB:        names[j],
					PriceSpreadBps:   priceSpread,
					FundingSpreadBps: fundingSpread,
				})
			}
		}
	}
	return candidates
}

// fundingSpread resolves the latest rate on each venue and returns the
// absolute spread in bps. Any lookup error collapses the spread to 0.
func (s *Summarizer) fundingSpread(token, exchangeA, rawA, exchangeB, rawB string, lookup RateLookup) float64 {
	if lookup == nil {
		return 0
	}
	rateA, errA := lookup(exchangeA, rawA)
	rateB, errB := lookup(exchangeB, rawB)
	if errA != nil || errB != nil {
		err := errA
		if err == nil {
			err = errB
		}
		s.log.WithComponent("summarizer").WithError(err).WithFields(logger.Fields{
			"symbol":     token,
			"exchange_a": exchangeA,
			"exchange_b": exchangeB,
		}).Warn("funding rate lookup failed, spread set to 0")
		return 0
	}
	diff := rateA - rateB
	if diff < 0 {
		diff = -diff
	}
	return diff * bpsFactor
}
