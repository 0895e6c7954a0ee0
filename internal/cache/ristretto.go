package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

// ristrettoCache implements Cache using Ristretto as the backend.
// Ristretto buffers writes; Wait flushes the buffers so a subsequent
// Get observes them. Callers that need read-after-write (the idempotency
// store) call Wait through the Waiter interface.
type ristrettoCache struct {
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
	mu     sync.RWMutex
}

// Ensure ristrettoCache implements the required interfaces.
var (
	_ Cache         = (*ristrettoCache)(nil)
	_ StatsProvider = (*ristrettoCache)(nil)
	_ Waiter        = (*ristrettoCache)(nil)
)

// Default Ristretto sizing for idempotency payloads.
const (
	defaultNumCounters = 100_000
	defaultMaxCost     = 64 << 20 // 64 MiB
	defaultBufferItems = 64
)

// newRistrettoCache creates a new Ristretto cache with the given configuration.
func newRistrettoCache(cfg RistrettoConfig) (*ristrettoCache, error) {
	numCounters := cfg.NumCounters
	if numCounters <= 0 {
		numCounters = defaultNumCounters
	}
	maxCost := cfg.MaxCost
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	bufferItems := cfg.BufferItems
	if bufferItems <= 0 {
		bufferItems = defaultBufferItems
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int64("num_counters", numCounters).
		Int64("max_cost", maxCost).
		Int64("buffer_items", bufferItems).
		Msg("ristretto cache created")

	return &ristrettoCache{cache: cache}, nil
}

// Get retrieves a value from the cache.
// Returns ErrNotFound if the key does not exist.
func (r *ristrettoCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return nil, ErrClosed
	}

	value, found := r.cache.Get(key)
	if !found {
		return nil, ErrNotFound
	}

	// Return a copy to prevent mutation of cached data
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// SetWithTTL stores a value in the cache with a time-to-live.
func (r *ristrettoCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return ErrClosed
	}

	// Copy to prevent the caller from mutating cached data
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	// Cost is the byte length of the value
	r.cache.SetWithTTL(key, valueCopy, int64(len(value)), ttl)

	return nil
}

// Delete removes a key from the cache. Idempotent.
func (r *ristrettoCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return ErrClosed
	}

	r.cache.Del(key)
	return nil
}

// Len returns the approximate number of live keys.
func (r *ristrettoCache) Len() int {
	s := r.Stats()
	return int(s.KeyCount)
}

// Wait flushes Ristretto's write buffers.
func (r *ristrettoCache) Wait() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return
	}
	r.cache.Wait()
}

// Close releases resources associated with the cache.
// Close is idempotent.
func (r *ristrettoCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return nil
	}
	r.closed.Store(true)

	r.cache.Wait()
	r.cache.Close()
	return nil
}

// Stats returns current cache statistics.
func (r *ristrettoCache) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return Stats{}
	}

	metrics := r.cache.Metrics
	return Stats{
		Hits:      metrics.Hits(),
		Misses:    metrics.Misses(),
		KeyCount:  metrics.KeysAdded() - metrics.KeysEvicted(),
		Evictions: metrics.KeysEvicted(),
	}
}
