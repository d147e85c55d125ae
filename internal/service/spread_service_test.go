package service

import (
	"math"
	"testing"
	"time"

	"pairtrade/internal/domain"
)

func minuteCandles(symbol string, start time.Time, closes []float64) []domain.Candle {
	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = domain.Candle{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return candles
}

func TestRollingHedgeRatioScenario(t *testing.T) {
	// Trailing 3 samples at index 3: y=[12,14,16], x=[6,7,8].
	// beta = (12*6 + 14*7 + 16*8) / (36 + 49 + 64) = 298/149 = 2.
	y := []float64{10, 12, 14, 16}
	x := []float64{5, 6, 7, 8}

	ratios := RollingHedgeRatios(y, x, 3)
	if len(ratios) != 4 {
		t.Fatalf("got %d ratios, want 4", len(ratios))
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(ratios[i]) {
			t.Fatalf("ratios[%d] = %v, want NaN before full window", i, ratios[i])
		}
	}
	want := 298.0 / 149.0
	if math.Abs(ratios[3]-want) > 1e-12 {
		t.Fatalf("ratios[3] = %v, want %v", ratios[3], want)
	}

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bars := NewSpreadService().BuildSpreadSeries("leg1_leg2",
		minuteCandles("LEG1", start, y), minuteCandles("LEG2", start, x), 3)
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	last := bars[len(bars)-1]
	if math.Abs(last.Close-(16-want*8)) > 1e-12 {
		t.Fatalf("spread close = %v, want %v", last.Close, 16-want*8)
	}
	if last.Volume != 0 {
		t.Fatalf("spread volume = %v, want 0", last.Volume)
	}
}

func TestBuildSpreadSeriesConstantRatio(t *testing.T) {
	// leg1 = r * leg2 for all samples: once the window is full, beta = r
	// exactly and every spread close is 0.
	const r = 2.5
	leg2 := []float64{10, 11, 12, 13, 14, 15, 16, 17}
	leg1 := make([]float64, len(leg2))
	for i, v := range leg2 {
		leg1[i] = r * v
	}

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bars := NewSpreadService().BuildSpreadSeries("a_b",
		minuteCandles("A", start, leg1), minuteCandles("B", start, leg2), 4)

	if len(bars) != len(leg2)-3 {
		t.Fatalf("got %d bars, want %d", len(bars), len(leg2)-3)
	}
	for _, bar := range bars {
		if math.Abs(bar.Slope-r) > 1e-12 {
			t.Fatalf("slope = %v, want %v", bar.Slope, r)
		}
		if math.Abs(bar.Close) > 1e-9 {
			t.Fatalf("spread close = %v, want 0", bar.Close)
		}
	}
}

func TestBuildSpreadSeriesInputShorterThanWindow(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	leg1 := minuteCandles("A", start, []float64{1, 2, 3})
	leg2 := minuteCandles("B", start, []float64{2, 4, 6})

	if bars := NewSpreadService().BuildSpreadSeries("a_b", leg1, leg2, 5); len(bars) != 0 {
		t.Fatalf("got %d bars for input shorter than window, want 0", len(bars))
	}
}

func TestBuildSpreadSeriesEmptyInput(t *testing.T) {
	s := NewSpreadService()
	if bars := s.BuildSpreadSeries("a_b", nil, nil, 3); len(bars) != 0 {
		t.Fatalf("got %d bars for empty input, want 0", len(bars))
	}
}

func TestRollingHedgeRatioZeroDenominator(t *testing.T) {
	y := []float64{1, 2, 3}
	x := []float64{0, 0, 0}
	ratios := RollingHedgeRatios(y, x, 2)
	for i, r := range ratios {
		if !math.IsNaN(r) {
			t.Fatalf("ratios[%d] = %v, want NaN for zero denominator", i, r)
		}
	}
}

func TestMergeAsOfToleranceAndBackwardMatch(t *testing.T) {
	s := NewSpreadService()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	leg1 := []domain.Candle{
		{Symbol: "A", Timestamp: start, Close: 100},
		{Symbol: "A", Timestamp: start.Add(4 * time.Minute), Close: 101},
		{Symbol: "A", Timestamp: start.Add(20 * time.Minute), Close: 102},
	}
	leg2 := []domain.Candle{
		{Symbol: "B", Timestamp: start, Close: 50},
	}

	merged := s.MergeAsOf(leg1, leg2)
	if len(merged) != 2 {
		t.Fatalf("got %d merged rows, want 2", len(merged))
	}
	// Both surviving rows match backward to the same leg2 observation.
	for _, row := range merged {
		if row.Close2 != 50 {
			t.Fatalf("merged Close2 = %v, want 50", row.Close2)
		}
	}
	// The 20-minute-later row exceeds the 5 minute tolerance and is dropped.
	for _, row := range merged {
		if row.Close1 == 102 {
			t.Fatalf("row beyond tolerance should have been dropped")
		}
	}
}

func TestMergeAsOfDropsRowsBeforeFirstMatch(t *testing.T) {
	s := NewSpreadService()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	leg1 := []domain.Candle{
		{Symbol: "A", Timestamp: start, Close: 100},
		{Symbol: "A", Timestamp: start.Add(2 * time.Minute), Close: 101},
	}
	leg2 := []domain.Candle{
		{Symbol: "B", Timestamp: start.Add(time.Minute), Close: 50},
	}

	merged := s.MergeAsOf(leg1, leg2)
	if len(merged) != 1 {
		t.Fatalf("got %d merged rows, want 1", len(merged))
	}
	if merged[0].Close1 != 101 {
		t.Fatalf("merged Close1 = %v, want 101", merged[0].Close1)
	}
}
