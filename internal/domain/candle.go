package domain

import (
	"strings"
	"time"
)

// Candle represents one minute-aligned OHLCV bar for a single instrument.
// Candles are immutable once written; unique per (symbol, timestamp).
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Pair is a two-legged spread instrument. Name is the canonical storage key:
// both legs lowercased with ':' stripped, joined by '_'.
type Pair struct {
	Name     string `json:"name"`
	Leg1     string `json:"leg1"`
	Leg2     string `json:"leg2"`
	Exchange string `json:"exchange"`
}

// NewPair builds a Pair with its canonical name.
func NewPair(exchange, leg1, leg2 string) Pair {
	return Pair{
		Name:     PairName(leg1, leg2),
		Leg1:     cleanSymbol(leg1),
		Leg2:     cleanSymbol(leg2),
		Exchange: strings.ToLower(exchange),
	}
}

// ParsePair splits a canonical pair name back into its legs.
func ParsePair(exchange, name string) (Pair, bool) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, false
	}
	return NewPair(exchange, parts[0], parts[1]), true
}

// PairName returns the canonical pair key for two leg symbols.
func PairName(leg1, leg2 string) string {
	return cleanSymbol(leg1) + "_" + cleanSymbol(leg2)
}

// NormalizeSymbol canonicalizes a raw exchange symbol the same way pair
// names are built: lowercased, ':' stripped.
func NormalizeSymbol(s string) string {
	return cleanSymbol(s)
}

func cleanSymbol(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, ":", ""))
}
