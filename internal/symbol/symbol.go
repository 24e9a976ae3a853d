// Package symbol canonicalizes exchange-specific perpetual tickers into a
// base token identity plus a price multiplier.
//
// Examples:
//
//	1000PEPE-USDT-SWAP -> PEPE (x1000)
//	kSOL/USDT          -> SOL  (x1000)
//	TOSHI1000USD       -> TOSHI (x1000)
package symbol

import (
	"strings"
	"unicode"
)

// quoteSuffixes are stripped longest-match-first so a longer variation is
// never partially consumed by a shorter one (":USDT" before "USDT", etc.).
var quoteSuffixes = []string{
	"/USDT:USDT",
	":USDT",
	"/USDT",
	"-USDT",
	"USDT",
	"-SWAP",
	"-USD",
	"/USD",
	"USD",
}

// renames maps venue-specific token names to their canonical identity.
// Matched as substrings, in order, so results stay reproducible.
var renames = []struct{ from, to string }{
	{"SOLAYER", "LAYER"},
	{"TRUMPOFFICIAL", "TRUMP"},
}

// Normalize returns the canonical base token for a raw exchange ticker.
// Unrecognized formats pass through unchanged; the function never fails.
func Normalize(raw string) string {
	token, _ := parse(raw)
	return token
}

// ExtractMultiplier returns the price multiplier encoded in a raw ticker
// (1, 1000 or 1000000). It shares its matching logic with Normalize, so the
// two are always consistent for the same input.
func ExtractMultiplier(raw string) float64 {
	_, mult := parse(raw)
	return mult
}

// parse strips quote suffixes, then applies exactly one multiplier rule:
// start-prefix forms first (Binance/Bybit/OKX), then Hyperliquid's k-prefix,
// then RabbitX trailing forms. The rename table is applied last.
func parse(raw string) (string, float64) {
	cleaned := stripQuote(raw)

	token := cleaned
	mult := 1.0

	switch {
	case strings.HasPrefix(cleaned, "1000000"):
		// must be checked before "1000"
		token, mult = cleaned[7:], 1_000_000
	case strings.HasPrefix(cleaned, "1M"):
		token, mult = cleaned[2:], 1_000_000
	case strings.HasPrefix(cleaned, "1000"):
		token, mult = cleaned[4:], 1000
	case hasKiloPrefix(cleaned):
		token, mult = cleaned[1:], 1000
	case strings.HasSuffix(cleaned, "1000000"):
		token, mult = cleaned[:len(cleaned)-7], 1_000_000
	case strings.HasSuffix(cleaned, "1M"):
		token, mult = cleaned[:len(cleaned)-2], 1_000_000
	case strings.HasSuffix(cleaned, "1000"):
		token, mult = cleaned[:len(cleaned)-4], 1000
	}

	for _, r := range renames {
		if strings.Contains(token, r.from) {
			return r.to, mult
		}
	}
	return token, mult
}

// stripQuote removes quote-currency and contract-type suffixes until none
// remain, e.g. BTC-USDT-SWAP -> BTC-USDT -> BTC.
func stripQuote(sym string) string {
	for {
		stripped := false
		for _, suffix := range quoteSuffixes {
			if len(sym) > len(suffix) && strings.HasSuffix(sym, suffix) {
				sym = sym[:len(sym)-len(suffix)]
				stripped = true
				break
			}
		}
		if !stripped {
			return sym
		}
	}
}

// hasKiloPrefix reports whether sym uses Hyperliquid's k-prefix form
// (kPEPE). A bare "k" or a lowercase follow-up is a regular token name.
func hasKiloPrefix(sym string) bool {
	if len(sym) < 2 || sym[0] != 'k' {
		return false
	}
	return unicode.IsUpper(rune(sym[1]))
}
