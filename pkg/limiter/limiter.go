// Package limiter provides a bounded concurrency limiter for fan-out work
// against upstream APIs.
package limiter

import (
	"context"
	"sync"
)

// DefaultConcurrency is the limiter size used when none is configured.
const DefaultConcurrency = 5

// Limiter caps the number of simultaneously running jobs. Excess jobs wait
// for a slot; admission follows submission order, completion order does not.
type Limiter struct {
	slots chan struct{}
}

// New creates a limiter admitting up to n jobs at once.
func New(n int) *Limiter {
	if n < 1 {
		n = DefaultConcurrency
	}
	return &Limiter{
		slots: make(chan struct{}, n),
	}
}

// Acquire blocks until a slot is free or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// Do runs fn under a slot. The job's own error is returned untransformed;
// a context error is returned if cancelled while waiting for admission.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// ForEach runs fn for every item through the limiter and blocks until all
// invocations complete. Each invocation receives its index so callers can
// write per-unit results without shared state; merging into shared maps
// belongs to the caller, after ForEach returns.
func ForEach[T any](ctx context.Context, l *Limiter, items []T, fn func(ctx context.Context, idx int, item T)) {
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				return
			}
			defer l.Release()
			fn(ctx, idx, item)
		}(i, items[i])
	}
	wg.Wait()
}
