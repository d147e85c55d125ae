package pool

import (
	"context"
	"sync"
)

// Pool is a bounded worker pool: jobs submitted through Run are executed by
// a fixed number of workers so fan-out (e.g. per-pair backfill) can never
// exceed the upstream API's tolerated concurrency. Workers share no state
// beyond what the jobs themselves touch.
type Pool struct {
	size int
}

// New creates a pool with the given worker count (minimum 1).
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size}
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}

// Run executes fn for every job, at most Size at a time, and blocks until
// all jobs finish or ctx is cancelled. Jobs not yet started when ctx is
// cancelled are skipped; in-flight jobs are left to observe ctx themselves.
func Run[T any](ctx context.Context, p *Pool, jobs []T, fn func(ctx context.Context, job T)) {
	ch := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				fn(ctx, job)
			}
		}()
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case ch <- job:
		}
	}
	close(ch)
	wg.Wait()
}
