// Package gate bounds the number of concurrent upstream calls.
//
// Gate is a counting semaphore with a strict-FIFO wait queue: when a
// permit is released while callers are queued, the permit is handed
// directly to the head of the queue instead of returning to the pool.
// That guarantees arrival-order fairness, so a burst of retrying
// requests cannot starve fresh ones.
//
// Basic usage:
//
//	g := gate.New(8)
//	if err := g.Acquire(ctx); err != nil {
//		// canceled or timed out while queued
//	}
//	defer g.Release()
package gate

import (
	"context"
	"sync"
)

// Gate is a counting semaphore with FIFO waiter handoff.
// All methods are safe for concurrent use.
type Gate struct {
	waiters []*waiter
	permits int
	max     int
	mu      sync.Mutex
}

type waiter struct {
	ready chan struct{}
}

// DefaultMaxPermits bounds parallel upstream calls when unconfigured.
const DefaultMaxPermits = 8

// New creates a Gate with maxPermits permits.
// Non-positive values fall back to DefaultMaxPermits.
func New(maxPermits int) *Gate {
	if maxPermits <= 0 {
		maxPermits = DefaultMaxPermits
	}
	return &Gate{
		permits: maxPermits,
		max:     maxPermits,
	}
}

// Acquire obtains a permit, queuing in arrival order when none is
// available. It returns ctx.Err() if the context is canceled or its
// deadline passes while queued; in that case no permit is held.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.permits > 0 && len(g.waiters) == 0 {
		g.permits--
		g.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	// Canceled while queued. The permit may have been handed to us
	// between ctx.Done firing and taking the lock; if so, pass it on.
	g.mu.Lock()
	select {
	case <-w.ready:
		g.releaseLocked()
	default:
		g.removeWaiterLocked(w)
	}
	g.mu.Unlock()

	return ctx.Err()
}

// Release returns a permit. If callers are queued, the permit goes
// straight to the head of the queue. Release must be called exactly once
// per successful Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.releaseLocked()
	g.mu.Unlock()
}

func (g *Gate) releaseLocked() {
	if len(g.waiters) > 0 {
		head := g.waiters[0]
		g.waiters[0] = nil
		g.waiters = g.waiters[1:]
		close(head.ready)
		return
	}
	if g.permits < g.max {
		g.permits++
	}
}

func (g *Gate) removeWaiterLocked(target *waiter) {
	for i, w := range g.waiters {
		if w == target {
			copy(g.waiters[i:], g.waiters[i+1:])
			g.waiters[len(g.waiters)-1] = nil
			g.waiters = g.waiters[:len(g.waiters)-1]
			return
		}
	}
}

// Available returns the number of free permits.
func (g *Gate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.permits
}

// Waiting returns the current queue length.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// Max returns the permit bound set at construction.
func (g *Gate) Max() int {
	return g.max
}

// Snapshot is a read-only view of the gate for diagnostics.
type Snapshot struct {
	MaxPermits int `json:"max_permits"`
	Available  int `json:"available"`
	Waiting    int `json:"waiting"`
}

// Snapshot returns a point-in-time view of the gate.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		MaxPermits: g.max,
		Available:  g.permits,
		Waiting:    len(g.waiters),
	}
}
