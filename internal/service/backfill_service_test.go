package service

import (
	"context"
	"testing"
	"time"

	"pairtrade/internal/calendar"
	"pairtrade/internal/domain"
	"pairtrade/internal/pool"
)

func newTestBackfill(candles *fakeCandleRepo, spreads *fakeSpreadRepo, provider *fakeProvider, initial time.Time) *BackfillService {
	return NewBackfillService(
		"binance",
		calendar.Continuous{},
		candles,
		spreads,
		provider,
		NewSpreadService(),
		pool.New(2),
		initial,
	)
}

func seedLegs(t *testing.T, repo *fakeCandleRepo, start time.Time, n int) {
	t.Helper()
	ctx := context.Background()
	var leg1, leg2 []domain.Candle
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		v2 := 10.0 + float64(i)
		v1 := 3 * v2
		leg1 = append(leg1, domain.Candle{Symbol: "aaa", Timestamp: ts, Open: v1, High: v1, Low: v1, Close: v1, Volume: 1})
		leg2 = append(leg2, domain.Candle{Symbol: "bbb", Timestamp: ts, Open: v2, High: v2, Low: v2, Close: v2, Volume: 1})
	}
	if err := repo.UpsertBatch(ctx, leg1); err != nil {
		t.Fatalf("seed leg1: %v", err)
	}
	if err := repo.UpsertBatch(ctx, leg2); err != nil {
		t.Fatalf("seed leg2: %v", err)
	}
}

func TestFillPairGapsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(-2 * time.Hour).Truncate(time.Minute)

	candles := newFakeCandleRepo()
	spreads := newFakeSpreadRepo()
	seedLegs(t, candles, start, 60)

	b := newTestBackfill(candles, spreads, &fakeProvider{}, start)
	pair := domain.NewPair("binance", "aaa", "bbb")

	if err := b.FillPairGaps(ctx, pair, 5); err != nil {
		t.Fatalf("first backfill: %v", err)
	}
	first, _ := spreads.GetRecent(ctx, pair.Name, 1000)
	if len(first) == 0 {
		t.Fatalf("no spread bars produced")
	}
	// Window 5 over 60 rows yields 56 defined bars; 2 warmup rows dropped.
	if len(first) != 54 {
		t.Fatalf("got %d bars, want 54", len(first))
	}

	if err := b.FillPairGaps(ctx, pair, 5); err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	second, _ := spreads.GetRecent(ctx, pair.Name, 1000)
	if len(second) != len(first) {
		t.Fatalf("re-run changed row count: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if second[i].Slope != first[i].Slope || !second[i].Timestamp.Equal(first[i].Timestamp) {
			t.Fatalf("re-run rewrote bar %d", i)
		}
	}
}

func TestFillPairGapsResumesAfterLastKnown(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(-2 * time.Hour).Truncate(time.Minute)

	candles := newFakeCandleRepo()
	spreads := newFakeSpreadRepo()
	seedLegs(t, candles, start, 60)

	pair := domain.NewPair("binance", "aaa", "bbb")
	// Pretend everything through minute 30 is already known.
	known := start.Add(30 * time.Minute)
	if err := spreads.InsertBatch(ctx, []domain.SpreadBar{{Pair: pair.Name, Timestamp: known, Slope: 3}}); err != nil {
		t.Fatalf("seed known bar: %v", err)
	}

	b := newTestBackfill(candles, spreads, &fakeProvider{}, start)
	if err := b.FillPairGaps(ctx, pair, 5); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	bars, _ := spreads.GetRecent(ctx, pair.Name, 1000)
	for _, bar := range bars {
		if bar.Timestamp.Before(known) {
			t.Fatalf("bar at %v predates last known %v", bar.Timestamp, known)
		}
	}
}

func TestEnsureWindowAvailabilityWidensOnShortfall(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	candles := newFakeCandleRepo()
	spreads := newFakeSpreadRepo()
	pair := domain.NewPair("binance", "aaa", "bbb")

	last := start.Add(100 * time.Minute)
	if err := spreads.InsertBatch(ctx, []domain.SpreadBar{{Pair: pair.Name, Timestamp: last, Slope: 1}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Only 10 candles available in the naive 60-minute lookback.
	seedLegs(t, candles, last.Add(-9*time.Minute), 10)

	b := newTestBackfill(candles, spreads, &fakeProvider{}, start)
	got, err := b.EnsureWindowAvailability(ctx, pair, 60)
	if err != nil {
		t.Fatalf("EnsureWindowAvailability: %v", err)
	}

	naive := last.Add(-60 * time.Minute)
	// Shortfall 50 plus the safety margin of 10, stepped back further.
	want := naive.Add(-60 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("lookback = %v, want %v", got, want)
	}
}

func TestEnsureWindowAvailabilityNoHistory(t *testing.T) {
	ctx := context.Background()
	initial := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	b := newTestBackfill(newFakeCandleRepo(), newFakeSpreadRepo(), &fakeProvider{}, initial)
	got, err := b.EnsureWindowAvailability(ctx, domain.NewPair("binance", "aaa", "bbb"), 60)
	if err != nil {
		t.Fatalf("EnsureWindowAvailability: %v", err)
	}
	if !got.Equal(initial) {
		t.Fatalf("lookback = %v, want initial start %v", got, initial)
	}
}

func TestFillCandleGapsResumesAndDropsFormingMinute(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	backfillStart := now.Add(-10 * time.Minute).Truncate(time.Minute)

	provider := &fakeProvider{candles: map[string][]domain.Candle{}}
	for i := 0; i < 12; i++ {
		ts := backfillStart.Add(time.Duration(i) * time.Minute)
		provider.candles["aaa"] = append(provider.candles["aaa"], domain.Candle{
			Symbol: "aaa", Timestamp: ts, Close: float64(i),
		})
	}

	candles := newFakeCandleRepo()
	b := newTestBackfill(candles, newFakeSpreadRepo(), provider, backfillStart)

	if err := b.FillCandleGaps(ctx, "aaa"); err != nil {
		t.Fatalf("FillCandleGaps: %v", err)
	}

	stored, _ := candles.GetRange(ctx, "aaa", backfillStart, now.Add(time.Hour))
	if len(stored) == 0 {
		t.Fatalf("no candles stored")
	}
	cutoff := now.Truncate(time.Minute).Add(-time.Minute)
	for _, c := range stored {
		if c.Timestamp.After(cutoff) {
			t.Fatalf("stored still-forming candle at %v", c.Timestamp)
		}
	}

	// Second run resumes strictly after the stored maximum.
	lastBefore, _ := candles.LastTimestamp(ctx, "aaa")
	if err := b.FillCandleGaps(ctx, "aaa"); err != nil {
		t.Fatalf("second FillCandleGaps: %v", err)
	}
	lastAfter, _ := candles.LastTimestamp(ctx, "aaa")
	if lastAfter.Before(lastBefore) {
		t.Fatalf("resume moved backwards: %v -> %v", lastBefore, lastAfter)
	}
}
