package sources

import (
	"math"
	"strings"
	"unicode"
)

var stableSymbols = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "FRAX": true, "GHO": true,
	"LUSD": true, "TUSD": true, "BUSD": true, "PYUSD": true, "USDP": true,
	"USDT0": true, "USD₮0": true, "USDE": true, "USP": true, "USDA": true,
	"EUSD": true, "CUSD": true, "CRVUSD": true, "DOLA": true, "SUSD": true,
	"USDS": true, "AUSD": true, "MUSD": true, "USDAI": true, "SUSDE": true,
	"FDUSD": true, "FRXUSD": true, "RLUSD": true, "SDAI": true, "SUSDS": true,
	"USD0": true, "USD1": true, "USDBC": true, "USDG": true,
}

// isStable reports whether symbol is a known stablecoin or priced near $1.
func isStable(symbol string, price float64) bool {
	if stableSymbols[strings.ToUpper(symbol)] {
		return true
	}
	return price >= 0.95 && price <= 1.05
}

// slug lower-cases s and joins words with hyphens: "BNB Chain" -> "bnb-chain".
func slug(s string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(unicode.ToLower(r))
		default:
			hyphen = true
		}
	}
	return b.String()
}

// finite returns &v, or nil for NaN and ±Inf, which ParseFloat accepts as text.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// percent converts a fractional rate (0.0425) to percent (4.25).
func percent(fraction float64) float64 {
	return fraction * 100
}

// sumRates adds the non-nil rates; nil when all are nil.
func sumRates(rates ...*float64) *float64 {
	var total float64
	found := false
	for _, r := range rates {
		if r != nil {
			total += *r
			found = true
		}
	}
	if !found {
		return nil
	}
	return &total
}
