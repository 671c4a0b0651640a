package store

import (
	"context"

	"github.com/condomx/billing-core/coreerr"
)

// Pool is a bounded semaphore of connection handles (spec §5: "The
// store's connection pool (bounded; default max 100 active)").
// Implementations embed a Pool and hand out handles from ScopedHandle.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool with the given maximum number of concurrently
// active handles.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = 100
	}
	return &Pool{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or ctx is done, returning a
// Transient error immediately (non-blocking) if the pool is full and
// the caller passed a context that is already exhausted of patience —
// in practice callers should use a short deadline so pool exhaustion
// surfaces as Transient rather than hanging the caller indefinitely.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	select {
	case p.slots <- struct{}{}:
		return &poolHandle{pool: p}, nil
	case <-ctx.Done():
		return nil, coreerr.Wrap(coreerr.Transient, "connection pool exhausted", ctx.Err())
	}
}

// TryAcquire attempts a non-blocking acquire, failing fast with
// Transient if the pool is currently exhausted.
func (p *Pool) TryAcquire() (Handle, error) {
	select {
	case p.slots <- struct{}{}:
		return &poolHandle{pool: p}, nil
	default:
		return nil, coreerr.New(coreerr.Transient, "connection pool exhausted")
	}
}

// InUse returns the number of handles currently checked out.
func (p *Pool) InUse() int { return len(p.slots) }

// Limit returns the pool's configured capacity.
func (p *Pool) Limit() int { return cap(p.slots) }

type poolHandle struct {
	pool     *Pool
	released bool
}

func (h *poolHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	<-h.pool.slots
}
