// Package source defines the exchange-access contracts consumed by the
// aggregation pipeline and a registry keyed by exchange id. Each venue gets
// one implementation in a subpackage; venue quirks never leak past it.
package source

import (
	"context"
	"fmt"
	"sort"

	"fundingflow/internal/model"
)

// PositionSource fetches the open perpetual positions for one venue.
type PositionSource interface {
	FetchPositions(ctx context.Context) ([]model.RawPosition, error)
}

// FundingSource fetches funding-rate history for one symbol on one venue.
// The rawSymbol is the venue's own ticker, not the canonical token. An
// empty slice (no error) means the venue has no data for the window.
type FundingSource interface {
	FetchFundingHistory(ctx context.Context, rawSymbol string, days int) ([]model.FundingRatePoint, error)
}

// FeeSource is an optional capability: total trading fees paid on the
// venue over the past days, in dollars.
type FeeSource interface {
	FetchFees(ctx context.Context, days int) (float64, error)
}

// Source bundles the per-venue capabilities plus the venue's native
// funding interval in hours (1 for hourly venues, 8 otherwise).
type Source interface {
	PositionSource
	FundingSource
	Name() string
	FundingIntervalHours() float64
}

// Registry maps exchange ids to their Source implementation.
type Registry struct {
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source under its own name. Registering the same name
// twice is a programming error.
func (r *Registry) Register(s Source) error {
	name := s.Name()
	if _, ok := r.sources[name]; ok {
		return fmt.Errorf("source %q already registered", name)
	}
	r.sources[name] = s
	return nil
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered exchange ids in alphabetical order so
// iteration over venues is deterministic.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered sources.
func (r *Registry) Len() int {
	return len(r.sources)
}
