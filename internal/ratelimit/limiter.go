// Package ratelimit provides keyed token-bucket rate limiting for aoai-relay.
//
// A KeyedLimiter holds one token bucket per key, built on
// golang.org/x/time/rate. Buckets are created lazily on first reference
// with full capacity, refill continuously at the configured rate, and are
// evicted by a periodic sweep once idle for longer than the idle window.
//
// The proxy composes two partitions: a limiter with the single key
// "global" and a limiter keyed by caller id. A request must pass both.
//
// Basic usage:
//
//	lim := ratelimit.NewKeyed("user", 2) // 2 tokens/sec, capacity 2
//	if !lim.Allow("user:alice", 1) {
//		// throttle
//	}
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultIdleWindow is how long a bucket may go unreferenced before the
// sweep evicts it.
const DefaultIdleWindow = 10 * time.Minute

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = time.Minute

// BucketSnapshot is a read-only view of one bucket for diagnostics.
type BucketSnapshot struct {
	Key      string  `json:"key"`
	Tokens   float64 `json:"tokens"`
	Capacity int     `json:"capacity"`
}

// KeyedLimiter is a group of token buckets sharing one rate, one bucket
// per key. All methods are safe for concurrent use.
type KeyedLimiter struct {
	name       string
	buckets    map[string]*bucket
	ratePerSec float64
	idleWindow time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewKeyed creates a keyed limiter. Each bucket refills at ratePerSec
// tokens per second and holds at most ratePerSec tokens (capacity equals
// the rate, so a key can burst one second's budget instantly).
// The name identifies the partition in logs and snapshots.
func NewKeyed(name string, ratePerSec float64) *KeyedLimiter {
	return &KeyedLimiter{
		name:       name,
		buckets:    make(map[string]*bucket),
		ratePerSec: normalizeRate(ratePerSec),
		idleWindow: DefaultIdleWindow,
		now:        time.Now,
	}
}

// NewKeyedWithClock creates a keyed limiter with an injected time source.
// Used by tests to control refill without sleeping.
func NewKeyedWithClock(name string, ratePerSec float64, now func() time.Time) *KeyedLimiter {
	l := NewKeyed(name, ratePerSec)
	l.now = now
	return l
}

func normalizeRate(r float64) float64 {
	if r <= 0 {
		return 1
	}
	return r
}

// burst converts the rate to a whole-token capacity, at least 1.
func burst(ratePerSec float64) int {
	b := int(math.Ceil(ratePerSec))
	if b < 1 {
		b = 1
	}
	return b
}

// Allow reports whether cost tokens are available for key and, if so,
// consumes them. Non-blocking; a denial consumes nothing.
// The bucket for key is created with full capacity on first reference.
func (l *KeyedLimiter) Allow(key string, cost int) bool {
	if cost <= 0 {
		cost = 1
	}

	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.ratePerSec), burst(l.ratePerSec))}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, cost)
}

// SetRate retunes the refill rate (and capacity) for every existing
// bucket and for buckets created afterwards. Used by config hot-reload.
func (l *KeyedLimiter) SetRate(ratePerSec float64) {
	ratePerSec = normalizeRate(ratePerSec)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ratePerSec = ratePerSec
	for _, b := range l.buckets {
		b.lim.SetLimitAt(now, rate.Limit(ratePerSec))
		b.lim.SetBurstAt(now, burst(ratePerSec))
	}
}

// Rate returns the configured refill rate in tokens per second.
func (l *KeyedLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ratePerSec
}

// Len returns the number of live buckets.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep evicts buckets that have not been referenced within the idle
// window and returns the number evicted.
func (l *KeyedLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleWindow {
			delete(l.buckets, key)
			evicted++
		}
	}

	if evicted > 0 {
		log.Debug().
			Str("partition", l.name).
			Int("evicted", evicted).
			Int("remaining", len(l.buckets)).
			Msg("rate limiter sweep")
	}
	return evicted
}

// StartSweeper runs Sweep every interval until ctx is canceled.
func (l *KeyedLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Snapshot returns a point-in-time view of every bucket.
// Token counts are clamped to [0, capacity].
func (l *KeyedLimiter) Snapshot() []BucketSnapshot {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	snaps := make([]BucketSnapshot, 0, len(l.buckets))
	for key, b := range l.buckets {
		capacity := b.lim.Burst()
		tokens := b.lim.TokensAt(now)
		if tokens < 0 {
			tokens = 0
		}
		if tokens > float64(capacity) {
			tokens = float64(capacity)
		}
		snaps = append(snaps, BucketSnapshot{
			Key:      key,
			Tokens:   tokens,
			Capacity: capacity,
		})
	}
	return snaps
}

// SetIdleWindow overrides the idle eviction window. Zero or negative
// values restore the default.
func (l *KeyedLimiter) SetIdleWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultIdleWindow
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.idleWindow = d
}
