package symbol

import "testing"

func TestNormalizeQuoteSuffixes(t *testing.T) {
	cases := map[string]string{
		"BTC":           "BTC",
		"ETH":           "ETH",
		"BTC/USDT":      "BTC",
		"ETH-USDT":      "ETH",
		"SOL:USDT":      "SOL",
		"BTC/USDT:USDT": "BTC",
		"ETH-USD":       "ETH",
		"SOL/USD":       "SOL",
		"BTC-USDT-SWAP": "BTC",
		"ETH-SWAP":      "ETH",
		"BTCUSD":        "BTC",
		"ETHUSD":        "ETH",
		"SOLAYER":       "LAYER",
		"TRUMPOFFICIAL": "TRUMP",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePrefixMultipliers(t *testing.T) {
	cases := map[string]string{
		"1000PEPE":        "PEPE",
		"1000TOSHI":       "TOSHI",
		"1000PEPE/USDT":   "PEPE",
		"1000SOL-USDT":    "SOL",
		"1MPEPE":          "PEPE",
		"1MPEPE/USDT":     "PEPE",
		"1000000PEPE":     "PEPE",
		"1000000SOL-USDT": "SOL",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeKiloPrefix(t *testing.T) {
	cases := map[string]string{
		"kPEPE":  "PEPE",
		"kTOSHI": "TOSHI",
		"kSOL":   "SOL",
		// a bare "k" or lowercase follow-up is a regular token name
		"k":     "k",
		"ktest": "ktest",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTrailingMultipliers(t *testing.T) {
	cases := map[string]string{
		"PEPE1000":     "PEPE",
		"TOSHI1000":    "TOSHI",
		"SOL1000":      "SOL",
		"PEPE1M":       "PEPE",
		"TOSHI1000000": "TOSHI",
		"PEPE1000USD":  "PEPE",
		"TOSHI1000USD": "TOSHI",
		// non-standard numeric suffixes stay untouched
		"BTC100": "BTC100",
		"ETH123": "ETH123",
		"100X":   "100X",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCombinedForms(t *testing.T) {
	cases := map[string]string{
		"1000PEPE-USDT-SWAP": "PEPE",
		"kSOL/USDT":          "SOL",
		"TOSHI1000-USD":      "TOSHI",
		"BTC-ETH":            "BTC-ETH",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractMultiplier(t *testing.T) {
	cases := map[string]float64{
		"BTC":            1,
		"ETH/USDT":       1,
		"SOL-USDT-SWAP":  1,
		"1000PEPE":       1000,
		"1000TOSHI/USDT": 1000,
		"1MPEPE":         1_000_000,
		"1000000SOL":     1_000_000,
		"kPEPE":          1000,
		"kSOL/USDT":      1000,
		"PEPE1000":       1000,
		"TOSHI1M":        1_000_000,
		"SOL1000000":     1_000_000,
		"TOSHI1000USD":   1000,
		"BTC100":         1,
		"k":              1,
		"ktest":          1,
	}
	for in, want := range cases {
		if got := ExtractMultiplier(in); got != want {
			t.Errorf("ExtractMultiplier(%q) = %v, want %v", in, got, want)
		}
	}
}

// Normalizing an already-canonical token must change nothing.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"1000PEPE-USDT-SWAP", "kSOL/USDT", "TOSHI1000-USD", "BTCUSD",
		"1MPEPE", "SOLAYER", "BTC100", "ETH-USDT", "BTC-ETH",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

// A multiplier other than 1 implies the token was rewritten, and vice versa
// (modulo the rename table, which changes names without a multiplier).
func TestNormalizeMultiplierConsistency(t *testing.T) {
	inputs := []string{
		"1000PEPE", "1MPEPE", "1000000PEPE", "kPEPE", "PEPE1000",
		"PEPE1M", "PEPE1000000", "BTC", "BTC100", "ktest", "k",
		"1000PEPE-USDT-SWAP", "kSOL/USDT", "TOSHI1000USD",
	}
	for _, in := range inputs {
		mult := ExtractMultiplier(in)
		norm := Normalize(in)
		if mult != 1 && norm == in {
			t.Errorf("ExtractMultiplier(%q) = %v but Normalize left it unchanged", in, mult)
		}
	}
}
