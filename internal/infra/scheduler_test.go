package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pairtrade/internal/domain"
	"pairtrade/internal/usecase"
)

// countingStore records GetParams calls, the first thing every scan
// does. The embedded interface stays nil: with no configured pairs the
// scan touches nothing else.
type countingStore struct {
	domain.LiveStore
	calls atomic.Int32
}

func (s *countingStore) GetParams(ctx context.Context) (*domain.StrategyParams, error) {
	s.calls.Add(1)
	return nil, domain.ErrNotFound
}

func newIdleScheduler(store *countingStore) *Scheduler {
	ts := usecase.NewTradingService(
		"binance", nil, nil, nil, store, nil, nil, nil, nil,
		domain.StrategyParams{},
	)
	// Scan every second; the backfill spec never fires inside the test.
	return NewScheduler(ts, "* * * * * *", "0 0 0 1 1 *")
}

func TestSchedulerJobsStopWithContext(t *testing.T) {
	store := &countingStore{}
	ctx, cancel := context.WithCancel(context.Background())
	s := newIdleScheduler(store)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for store.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("scan never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	// One tick may already be in flight when we cancel.
	time.Sleep(1100 * time.Millisecond)
	after := store.calls.Load()

	time.Sleep(2100 * time.Millisecond)
	if got := store.calls.Load(); got != after {
		t.Fatalf("scan kept running after cancellation: %d -> %d calls", after, got)
	}
}
