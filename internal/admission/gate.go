// Package admission bounds the number of conversions running at once.
// Transcoding is CPU-bound; without a cap, load would degrade latency for
// every caller and exhaust memory on large images. The bounded wait turns
// overload into an explicit rejection instead of unbounded queueing.
package admission

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when no slot frees up within the acquire timeout.
// Callers should translate it into a retryable overload response.
var ErrBusy = errors.New("all conversion slots busy")

const (
	defaultCapacity = 4
	defaultTimeout  = 600 * time.Second
)

// Gate is a fixed-capacity admission limiter. At most capacity permits are
// outstanding at any time.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	timeout  time.Duration
}

func NewGate(capacity int, timeout time.Duration) *Gate {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		timeout:  timeout,
	}
}

func (g *Gate) Capacity() int { return g.capacity }

// Acquire blocks until a slot is free, the timeout elapses (ErrBusy), or
// the caller's context is cancelled. The returned permit must be released;
// defer permit.Release() immediately so every exit path gives the slot back.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}
	return &Permit{gate: g}, nil
}

// Permit represents one occupied conversion slot.
type Permit struct {
	gate *Gate
	once sync.Once
}

// Release returns the slot. Safe to call more than once; only the first
// call has effect.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.gate.sem.Release(1)
	})
}
