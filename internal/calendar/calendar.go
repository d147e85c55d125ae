package calendar

import (
	"time"
)

// Calendar computes valid historical lookback ranges for an exchange.
type Calendar interface {
	// StepBack returns the timestamp n tradable minutes before start.
	StepBack(start time.Time, n int) time.Time
}

// Continuous is the 24/7 calendar (crypto): every minute is tradable.
type Continuous struct{}

func (Continuous) StepBack(start time.Time, n int) time.Time {
	return start.Add(-time.Duration(n) * time.Minute)
}

// Session is a session-bounded calendar (equities): weekdays only, with
// fixed open/close times in the exchange's local clock. Open and Close are
// minutes from midnight; both boundary minutes count as tradable.
type Session struct {
	Open  int
	Close int
}

// NewSession builds a Session calendar from hh:mm open/close times.
func NewSession(openHour, openMin, closeHour, closeMin int) Session {
	return Session{
		Open:  openHour*60 + openMin,
		Close: closeHour*60 + closeMin,
	}
}

// StepBack walks backward one minute at a time, counting only minutes that
// fall within session hours on a trading day. When a step lands outside
// session hours or on a non-trading day it jumps straight to the previous
// session's close, and from a weekend it jumps further back to Friday's
// close. This boundary-jump walk is deliberate: a naive subtraction would
// count overnight and weekend minutes that were never tradable.
func (s Session) StepBack(start time.Time, n int) time.Time {
	current := start
	remaining := n
	for remaining > 0 {
		tradingDay := isWeekday(current)
		if tradingDay && s.inSession(current) {
			remaining--
		}
		current = current.Add(-time.Minute)

		if !tradingDay || s.minuteOfDay(current) < s.Open {
			current = s.atClose(current)
			switch current.Weekday() {
			case time.Saturday:
				current = current.AddDate(0, 0, -1)
			case time.Sunday:
				current = current.AddDate(0, 0, -2)
			default:
				current = current.AddDate(0, 0, -1)
			}
		}
	}
	return current
}

func (s Session) inSession(t time.Time) bool {
	m := s.minuteOfDay(t)
	return m >= s.Open && m <= s.Close
}

func (s Session) minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func (s Session) atClose(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), s.Close/60, s.Close%60, 0, 0, t.Location())
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
