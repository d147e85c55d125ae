package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesAllJobs(t *testing.T) {
	p := New(4)
	var mu sync.Mutex
	seen := make(map[int]bool)

	jobs := make([]int, 50)
	for i := range jobs {
		jobs[i] = i
	}

	Run(context.Background(), p, jobs, func(ctx context.Context, job int) {
		mu.Lock()
		seen[job] = true
		mu.Unlock()
	})

	if len(seen) != len(jobs) {
		t.Fatalf("executed %d jobs, want %d", len(seen), len(jobs))
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const size = 3
	p := New(size)

	var inFlight, peak int64
	jobs := make([]int, 30)

	Run(context.Background(), p, jobs, func(ctx context.Context, job int) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
	})

	if got := atomic.LoadInt64(&peak); got > size {
		t.Fatalf("peak concurrency %d exceeds pool size %d", got, size)
	}
}

func TestRunStopsSubmittingOnCancel(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	var count int64
	jobs := make([]int, 100)
	Run(ctx, p, jobs, func(ctx context.Context, job int) {
		if atomic.AddInt64(&count, 1) == 2 {
			cancel()
		}
	})

	if got := atomic.LoadInt64(&count); got >= 100 {
		t.Fatalf("expected cancellation to skip pending jobs, ran %d", got)
	}
}

func TestNewClampsSize(t *testing.T) {
	if got := New(0).Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
}
