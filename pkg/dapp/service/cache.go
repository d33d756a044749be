package service

import (
	"context"
	"sync"

	"github.com/dsphq/dapphub/internal/metrics"
)

// call is one in-flight or completed cache population.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// resultCache memoizes one expensive fetch. Concurrent callers coalesce
// onto a single population; Invalidate detaches the current generation
// without tearing it down, so in-flight callers still receive a
// consistent (if stale) result and only the next Get refetches.
type resultCache[T any] struct {
	name string

	mu       sync.Mutex
	inflight *call[T]
}

func newResultCache[T any](name string) *resultCache[T] {
	return &resultCache[T]{name: name}
}

// Get returns the cached value, starting a population if none exists.
// The population runs detached from the caller's context so one caller's
// cancellation cannot fail the shared fetch; each caller still honors its
// own context while waiting. Failed populations are evicted so the next
// call retries.
func (c *resultCache[T]) Get(ctx context.Context, fetch func(ctx context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	cl := c.inflight
	if cl == nil {
		cl = &call[T]{done: make(chan struct{})}
		c.inflight = cl
		c.mu.Unlock()
		metrics.CacheMiss(c.name)

		go func() {
			cl.val, cl.err = fetch(context.WithoutCancel(ctx))
			// Evict failed populations before releasing waiters so the
			// next Get always refetches.
			if cl.err != nil {
				c.mu.Lock()
				if c.inflight == cl {
					c.inflight = nil
				}
				c.mu.Unlock()
			}
			close(cl.done)
		}()
	} else {
		c.mu.Unlock()
		metrics.CacheHit(c.name)
	}

	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Invalidate clears the memoized result. Safe to call before any Get.
func (c *resultCache[T]) Invalidate() {
	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
}
