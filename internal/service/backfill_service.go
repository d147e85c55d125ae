package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"pairtrade/internal/calendar"
	"pairtrade/internal/domain"
	"pairtrade/internal/pool"
)

const (
	// warmupRows are dropped from the head of every rebuilt spread series:
	// the first bars after the window fills are unstable artifacts.
	warmupRows = 2

	// availabilityMargin pads the widened lookback when a leg comes up
	// short, so the retry does not land exactly on the boundary again.
	availabilityMargin = 10

	// lookbackPad extends the regression lookback well past the window so
	// the rebuilt series overlaps known history before the resume point.
	lookbackPad = 5000
)

// BackfillService performs idempotent gap filling of base candle series
// and derived spread series against the exchange's trading calendar.
type BackfillService struct {
	exchange string
	cal      calendar.Calendar
	candles  domain.CandleRepository
	spreads  domain.SpreadRepository
	provider domain.MarketDataProvider
	builder  *SpreadService
	workers  *pool.Pool

	// initialStart seeds history for pairs and symbols never seen before.
	initialStart time.Time
}

// NewBackfillService creates a new BackfillService.
func NewBackfillService(
	exchange string,
	cal calendar.Calendar,
	candles domain.CandleRepository,
	spreads domain.SpreadRepository,
	provider domain.MarketDataProvider,
	builder *SpreadService,
	workers *pool.Pool,
	initialStart time.Time,
) *BackfillService {
	return &BackfillService{
		exchange:     exchange,
		cal:          cal,
		candles:      candles,
		spreads:      spreads,
		provider:     provider,
		builder:      builder,
		workers:      workers,
		initialStart: initialStart,
	}
}

// Run backfills candles for every leg and spread bars for every pair,
// fanning out across the bounded worker pool. Individual failures are
// logged and isolated; the affected pair resumes on the next scheduled run
// from its last confirmed timestamp.
func (b *BackfillService) Run(ctx context.Context, pairs []domain.Pair, window int) {
	symbolSet := make(map[string]struct{})
	for _, p := range pairs {
		symbolSet[p.Leg1] = struct{}{}
		symbolSet[p.Leg2] = struct{}{}
	}
	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}

	pool.Run(ctx, b.workers, symbols, func(ctx context.Context, symbol string) {
		if err := b.FillCandleGaps(ctx, symbol); err != nil {
			log.Printf("ERROR: Candle backfill failed for %s: %v", symbol, err)
		}
	})

	pool.Run(ctx, b.workers, pairs, func(ctx context.Context, pair domain.Pair) {
		if err := b.FillPairGaps(ctx, pair, window); err != nil {
			log.Printf("ERROR: Spread backfill failed for %s: %v", pair.Name, err)
		}
	})
}

// FillCandleGaps fetches base candles from the last cached timestamp (or
// the configured initial start) up to now and upserts them. Re-running
// over an overlapping range is idempotent.
func (b *BackfillService) FillCandleGaps(ctx context.Context, symbol string) error {
	now := time.Now()

	start := b.initialStart
	last, err := b.candles.LastTimestamp(ctx, symbol)
	switch {
	case err == nil:
		start = last.Add(time.Minute)
	case err != domain.ErrNotFound:
		return fmt.Errorf("failed to read last candle timestamp: %w", err)
	}
	if !start.Before(now) {
		return nil
	}

	fetched, err := b.provider.FetchCandles(ctx, symbol, start, now)
	if err != nil {
		return fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}

	// The current minute is still forming; never persist it.
	cutoff := now.Truncate(time.Minute).Add(-time.Minute)
	complete := fetched[:0]
	for _, c := range fetched {
		if !c.Timestamp.After(cutoff) {
			complete = append(complete, c)
		}
	}
	if len(complete) == 0 {
		return nil
	}
	if err := b.candles.UpsertBatch(ctx, complete); err != nil {
		return fmt.Errorf("failed to upsert candles for %s: %w", symbol, err)
	}
	return nil
}

// EnsureWindowAvailability finds the earliest lookback start such that,
// after the pair's last known spread bar, both legs have at least `window`
// candles available. If the naive lookback comes up short it widens once
// more by the shortfall plus a safety margin.
func (b *BackfillService) EnsureWindowAvailability(ctx context.Context, pair domain.Pair, window int) (time.Time, error) {
	last, err := b.spreads.LastTimestamp(ctx, pair.Name)
	if err != nil {
		if err == domain.ErrNotFound {
			return b.initialStart, nil
		}
		return time.Time{}, fmt.Errorf("failed to read last spread timestamp: %w", err)
	}

	lookback := b.cal.StepBack(last, window)
	end := last.Add(time.Minute)

	n1, err := b.candles.CountRange(ctx, pair.Leg1, lookback, end)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to count %s candles: %w", pair.Leg1, err)
	}
	n2, err := b.candles.CountRange(ctx, pair.Leg2, lookback, end)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to count %s candles: %w", pair.Leg2, err)
	}

	minAvailable := n1
	if n2 < minAvailable {
		minAvailable = n2
	}
	if minAvailable < window {
		return b.cal.StepBack(lookback, window-minAvailable+availabilityMargin), nil
	}
	return lookback, nil
}

// FillPairGaps recomputes the pair's spread series from a calendar-aware
// lookback and appends the bars strictly after the last known one. The
// first warmup rows of the rebuilt series are dropped, and the insert is
// insert-or-ignore keyed by (pair, timestamp), so overlapping re-runs
// neither duplicate rows nor rewrite existing slopes.
func (b *BackfillService) FillPairGaps(ctx context.Context, pair domain.Pair, window int) error {
	lookback, err := b.EnsureWindowAvailability(ctx, pair, window+lookbackPad)
	if err != nil {
		return err
	}

	var lastKnown time.Time
	haveLast := true
	last, err := b.spreads.LastTimestamp(ctx, pair.Name)
	switch {
	case err == nil:
		lastKnown = last
	case err == domain.ErrNotFound:
		haveLast = false
	default:
		return fmt.Errorf("failed to read last spread timestamp: %w", err)
	}

	now := time.Now()
	leg1, err := b.candles.GetRange(ctx, pair.Leg1, lookback, now)
	if err != nil {
		return fmt.Errorf("failed to load %s candles: %w", pair.Leg1, err)
	}
	leg2, err := b.candles.GetRange(ctx, pair.Leg2, lookback, now)
	if err != nil {
		return fmt.Errorf("failed to load %s candles: %w", pair.Leg2, err)
	}
	if len(leg1) == 0 || len(leg2) == 0 {
		return nil
	}

	bars := b.builder.BuildSpreadSeries(pair.Name, leg1, leg2, window)
	if len(bars) <= warmupRows {
		return nil
	}
	bars = bars[warmupRows:]

	if haveLast {
		fresh := bars[:0]
		for _, bar := range bars {
			if bar.Timestamp.After(lastKnown) {
				fresh = append(fresh, bar)
			}
		}
		bars = fresh
	}
	if len(bars) == 0 {
		return nil
	}

	if err := b.spreads.InsertBatch(ctx, bars); err != nil {
		return fmt.Errorf("failed to insert spread bars for %s: %w", pair.Name, err)
	}
	log.Printf("[OK] Backfilled %d spread bar(s) for %s", len(bars), pair.Name)
	return nil
}
