package domain

import (
	"time"
)

// Signal direction constants. A +1 signal shorts leg1 against a long leg2;
// -1 is the mirror trade.
const (
	SignalLong  = 1
	SignalShort = -1
	SignalNone  = 0
)

// Position status constants
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Exit reason constants (why the position was closed)
const (
	ExitReasonSL = "SL"
	ExitReasonTP = "TP"
)

// Action returns the order action string for a signal direction.
func Action(signal int) string {
	if signal == SignalLong {
		return "BUY"
	}
	return "SELL"
}

// Position is one open spread trade. It is owned exclusively by the
// position monitor for its lifetime; at most one OPEN position exists per
// pair. Entry/stop/target are spread prices; Qty1/Qty2 carry their sign
// (negative = short leg).
type Position struct {
	Pair        string    `json:"symbol_pair"`
	Leg1        string    `json:"sym1"`
	Leg2        string    `json:"sym2"`
	Signal      int       `json:"signal"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	Target      float64   `json:"target"`
	Qty1        float64   `json:"sym1_quantity"`
	Qty2        float64   `json:"sym2_quantity"`
	EntryPrice1 float64   `json:"sym1_entry_price"`
	EntryPrice2 float64   `json:"sym2_entry_price"`
	PnL         float64   `json:"pnl"`
	Status      string    `json:"status"`
	CandleTime  time.Time `json:"candle_time"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// MarkToMarket computes unrealized PnL from current leg prices.
func (p *Position) MarkToMarket(price1, price2 float64) float64 {
	return (price1-p.EntryPrice1)*p.Qty1 + (price2-p.EntryPrice2)*p.Qty2
}

// CheckExit evaluates the stop/target rules against the current live
// spread. For signal +1 the trade profits as the spread reverts upward, so
// SL triggers at or below the stop and TP at or above the target; for
// signal -1 both comparisons invert. Values strictly between never trigger.
func (p *Position) CheckExit(spread float64) (bool, string) {
	if p.Signal == SignalLong {
		if spread <= p.StopLoss {
			return true, ExitReasonSL
		}
		if spread >= p.Target {
			return true, ExitReasonTP
		}
		return false, ""
	}
	if spread >= p.StopLoss {
		return true, ExitReasonSL
	}
	if spread <= p.Target {
		return true, ExitReasonTP
	}
	return false, ""
}

// ClosedTrade is the terminal snapshot of a position, handed off to the
// trade-history store once the monitor closes it out.
type ClosedTrade struct {
	Position
	ExitReason string    `json:"exit_reason"`
	FinalPnL   float64   `json:"final_pnl"`
	ExitPrice1 float64   `json:"exit_price1"`
	ExitPrice2 float64   `json:"exit_price2"`
	ClosedAt   time.Time `json:"closed_at"`
}
