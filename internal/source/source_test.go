package source

import (
	"context"
	"testing"

	"fundingflow/internal/model"
)

type stubSource struct {
	name string
}

func (s stubSource) Name() string                  { return s.name }
func (s stubSource) FundingIntervalHours() float64 { return 8 }

func (s stubSource) FetchPositions(context.Context) ([]model.RawPosition, error) {
	return nil, nil
}

func (s stubSource) FetchFundingHistory(context.Context, string, int) ([]model.FundingRatePoint, error) {
	return nil, nil
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubSource{name: "binance"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(stubSource{name: "binance"}); err == nil {
		t.Fatalf("expected error on duplicate register")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"rabbitx", "binance", "okx"} {
		if err := r.Register(stubSource{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	names := r.Names()
	want := []string{"binance", "okx", "rabbitx"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if _, ok := r.Get("okx"); !ok {
		t.Fatalf("expected okx to be registered")
	}
	if _, ok := r.Get("bybit"); ok {
		t.Fatalf("bybit must not be registered")
	}
}
