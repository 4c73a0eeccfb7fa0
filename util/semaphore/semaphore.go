// Package semaphore wraps golang.org/x/sync/semaphore's weighted
// semaphore with a release-once guard, used to bound how many live
// connections a pool may have outstanding at once.
package semaphore

import (
	"context"

	wsemaphore "golang.org/x/sync/semaphore"
)

type S struct {
	ws *wsemaphore.Weighted
}

func New(max int64) *S {
	return &S{wsemaphore.NewWeighted(max)}
}

type AcquireGuard struct {
	s        *S
	released bool
}

// Acquire blocks until a permit is available or ctx is done.
//
// The returned AcquireGuard is not goroutine-safe.
func (s *S) Acquire(ctx context.Context) (*AcquireGuard, error) {
	if err := s.ws.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &AcquireGuard{s, false}, nil
}

// TryAcquire acquires a permit without blocking, returning nil if none
// was immediately available.
func (s *S) TryAcquire() *AcquireGuard {
	if !s.ws.TryAcquire(1) {
		return nil
	}
	return &AcquireGuard{s, false}
}

func (g *AcquireGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.s.ws.Release(1)
}
