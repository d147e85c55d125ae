package service

import (
	"math"
	"sort"
	"time"

	"pairtrade/internal/domain"
)

// mergeTolerance is how stale a leg2 row may be and still be matched to a
// leg1 row in the as-of join.
const mergeTolerance = 5 * time.Minute

// MergedRow is one time-aligned observation of both legs.
type MergedRow struct {
	Timestamp time.Time
	Open1     float64
	High1     float64
	Low1      float64
	Close1    float64
	Open2     float64
	High2     float64
	Low2      float64
	Close2    float64
}

// SpreadService builds historical spread series from aligned OHLC pairs.
type SpreadService struct{}

// NewSpreadService creates a new SpreadService.
func NewSpreadService() *SpreadService {
	return &SpreadService{}
}

// MergeAsOf joins leg1 rows against the most recent leg2 row at or before
// each leg1 timestamp (backward as-of join). Rows with no leg2 match within
// the tolerance are dropped.
func (s *SpreadService) MergeAsOf(leg1, leg2 []domain.Candle) []MergedRow {
	if len(leg1) == 0 || len(leg2) == 0 {
		return nil
	}

	a := sortedByTime(leg1)
	b := sortedByTime(leg2)

	merged := make([]MergedRow, 0, len(a))
	j := 0
	for _, c1 := range a {
		for j+1 < len(b) && !b[j+1].Timestamp.After(c1.Timestamp) {
			j++
		}
		c2 := b[j]
		if c2.Timestamp.After(c1.Timestamp) {
			continue
		}
		if c1.Timestamp.Sub(c2.Timestamp) > mergeTolerance {
			continue
		}
		merged = append(merged, MergedRow{
			Timestamp: c1.Timestamp,
			Open1:     c1.Open, High1: c1.High, Low1: c1.Low, Close1: c1.Close,
			Open2: c2.Open, High2: c2.High, Low2: c2.Low, Close2: c2.Close,
		})
	}
	return merged
}

// RollingHedgeRatios computes the no-intercept least-squares slope
// beta_i = sum(x*y)/sum(x^2) over the trailing window ending at each index.
// Indices before the first full window, and windows with a zero
// denominator, yield NaN. Each window is summed from scratch; running sums
// must not be substituted here, they drift.
func RollingHedgeRatios(y, x []float64, window int) []float64 {
	n := len(y)
	ratios := make([]float64, n)
	for i := range ratios {
		ratios[i] = math.NaN()
	}
	if window < 1 || len(x) != n {
		return ratios
	}

	for i := window - 1; i < n; i++ {
		var num, den float64
		for j := i - window + 1; j <= i; j++ {
			num += x[j] * y[j]
			den += x[j] * x[j]
		}
		if den != 0 {
			ratios[i] = num / den
		}
	}
	return ratios
}

// BuildSpreadSeries merges the two legs and derives spread bars with a
// rolling hedge ratio over the close prices. Bars with an undefined ratio
// are excluded. Empty or fully misaligned input produces an empty result.
func (s *SpreadService) BuildSpreadSeries(pair string, leg1, leg2 []domain.Candle, window int) []domain.SpreadBar {
	merged := s.MergeAsOf(leg1, leg2)
	if len(merged) == 0 {
		return nil
	}

	y := make([]float64, len(merged))
	x := make([]float64, len(merged))
	for i, row := range merged {
		y[i] = row.Close1
		x[i] = row.Close2
	}
	ratios := RollingHedgeRatios(y, x, window)

	bars := make([]domain.SpreadBar, 0, len(merged))
	for i, row := range merged {
		beta := ratios[i]
		if math.IsNaN(beta) {
			continue
		}
		bars = append(bars, domain.SpreadBar{
			Pair:      pair,
			Timestamp: row.Timestamp,
			Open:      row.Open1 - beta*row.Open2,
			High:      row.High1 - beta*row.High2,
			Low:       row.Low1 - beta*row.Low2,
			Close:     row.Close1 - beta*row.Close2,
			Volume:    0,
			Slope:     beta,
		})
	}
	return bars
}

func sortedByTime(candles []domain.Candle) []domain.Candle {
	out := make([]domain.Candle, len(candles))
	copy(out, candles)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
