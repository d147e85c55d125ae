package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"pairtrade/internal/domain"
)

// tradeCheckTTL bounds the staleness of the duplicate-open cache to the
// relevance window of the check itself, not the trade's lifetime.
const tradeCheckTTL = 300 * time.Second

// SignalRow is one spread bar annotated with its rolling bands and signal.
// LongBand/ShortBand are named for the action they trigger, not for where
// the level sits in the channel: crossing below LongBand opens a long
// spread trade, crossing above ShortBand opens a short one.
type SignalRow struct {
	Bar       domain.SpreadBar
	Mean      float64
	Std       float64
	LongBand  float64
	ShortBand float64
	Signal    int
}

// SignalService classifies entry signals from spread series and guards
// against opening a second position on a pair that already has one.
type SignalService struct {
	positions domain.PositionRepository
	live      domain.LiveStore
}

// NewSignalService creates a new SignalService.
func NewSignalService(positions domain.PositionRepository, live domain.LiveStore) *SignalService {
	return &SignalService{positions: positions, live: live}
}

// GenerateSignals computes rolling mean/std bands over the close series and
// classifies each bar: +1 when close is strictly below the long band, -1
// when strictly above the short band, 0 otherwise. Bars before the first
// full window carry no bands and signal 0. Equality with a band is a
// no-trade, never a trigger.
func GenerateSignals(bars []domain.SpreadBar, window int, k float64) []SignalRow {
	rows := make([]SignalRow, len(bars))
	for i, bar := range bars {
		row := SignalRow{Bar: bar, Mean: math.NaN(), Std: math.NaN(), LongBand: math.NaN(), ShortBand: math.NaN()}
		if window >= 1 && i >= window-1 {
			mean, std := rollingStats(bars, i, window)
			row.Mean = mean
			row.Std = std
			row.LongBand = mean - k*std
			row.ShortBand = mean + k*std
			if bar.Close < row.LongBand {
				row.Signal = domain.SignalLong
			} else if bar.Close > row.ShortBand {
				row.Signal = domain.SignalShort
			}
		}
		rows[i] = row
	}
	return rows
}

// rollingStats returns the mean and sample standard deviation of the close
// prices in the trailing window ending at index i.
func rollingStats(bars []domain.SpreadBar, i, window int) (float64, float64) {
	var sum float64
	for j := i - window + 1; j <= i; j++ {
		sum += bars[j].Close
	}
	mean := sum / float64(window)

	if window < 2 {
		return mean, 0
	}
	var ss float64
	for j := i - window + 1; j <= i; j++ {
		d := bars[j].Close - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(window-1))
}

// TradeExists reports whether an open position already exists for the pair
// and action. A short-TTL cache fronts the store; it is populated only on a
// confirmed "exists" result so a miss never masks a freshly opened trade
// for longer than the check's own window.
func (s *SignalService) TradeExists(ctx context.Context, exchange, pair string, signal int) (bool, error) {
	action := domain.Action(signal)
	cacheKey := fmt.Sprintf("trade_check:%s:%s:%s", exchange, pair, action)

	cached, err := s.live.TradeCheckExists(ctx, cacheKey)
	if err == nil && cached {
		return true, nil
	}

	exists, err := s.positions.Exists(ctx, exchange, pair, action)
	if err != nil {
		return false, fmt.Errorf("failed to check active trade for %s: %w", pair, err)
	}
	if exists {
		if err := s.live.SetTradeCheck(ctx, cacheKey, tradeCheckTTL); err != nil {
			log.Printf("WARNING: Failed to cache trade check for %s: %v", pair, err)
		}
	}
	return exists, nil
}
