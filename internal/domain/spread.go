package domain

import (
	"math"
	"time"
)

// SpreadBar is a derived OHLC bar for a pair: each price field is
// leg1 - slope*leg2 at that minute. Volume is always 0 for derived bars.
// Append-only, unique per (pair, timestamp).
type SpreadBar struct {
	Pair      string    `json:"pair"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Slope     float64   `json:"slope"`
}

// Defined reports whether the bar carries a usable hedge ratio. A NaN slope
// marks an undefined ratio (zero denominator in the regression window) and
// such bars must never be persisted or acted upon.
func (b SpreadBar) Defined() bool {
	return !math.IsNaN(b.Slope)
}

// Tick is a single trade print from the live feed.
type Tick struct {
	Symbol string
	Price  float64
	At     time.Time
}

// LastPrice is the most recent traded price for a symbol, as published to
// the live key-value state (last write wins).
type LastPrice struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"timestamp"`
}

// LiveSpread is the most recent live spread observation for a pair,
// computed from the latest leg prices and the cached hedge ratio.
type LiveSpread struct {
	Pair  string    `json:"pair"`
	Close float64   `json:"close"`
	Slope float64   `json:"slope"`
	At    time.Time `json:"timestamp"`
}
