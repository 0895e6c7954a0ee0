// Package cache provides the in-memory caching layer for aoai-relay.
//
// The cache package abstracts over two backends:
//   - Ristretto: high-performance local cache with cost-based eviction
//   - Memory: a plain locked map with deterministic visibility, used in
//     tests and small deployments
//
// All implementations are safe for concurrent use.
//
// Basic usage:
//
//	c, err := cache.New(cache.Config{Backend: cache.BackendRistretto})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.SetWithTTL(ctx, "key", []byte("value"), 5*time.Minute)
//
//	data, err := c.Get(ctx, "key")
//	if errors.Is(err, cache.ErrNotFound) {
//		// cache miss
//	}
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for cache operations.
// All implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrNotFound if the key does not exist.
	// Returns ErrClosed if the cache has been closed.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores a value in the cache with a time-to-live.
	// After the TTL expires, the key will no longer be retrievable.
	// Returns ErrClosed if the cache has been closed.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	// Returns nil if the key does not exist (idempotent).
	// Returns ErrClosed if the cache has been closed.
	Delete(ctx context.Context, key string) error

	// Len returns the current number of live entries, where the backend
	// can report it exactly, or an approximation otherwise.
	Len() int

	// Close releases resources associated with the cache.
	// After Close is called, all operations will return ErrClosed.
	// Close is idempotent.
	Close() error
}

// Stats provides cache statistics for observability.
type Stats struct {
	// Hits is the number of cache hits.
	Hits uint64 `json:"hits"`

	// Misses is the number of cache misses.
	Misses uint64 `json:"misses"`

	// KeyCount is the current number of keys in the cache.
	KeyCount uint64 `json:"key_count"`

	// Evictions is the number of keys evicted due to capacity limits.
	Evictions uint64 `json:"evictions"`
}

// StatsProvider is an optional interface for caches that support statistics.
// Use type assertion to check if a cache implements this interface:
//
//	if sp, ok := c.(cache.StatsProvider); ok {
//		stats := sp.Stats()
//	}
type StatsProvider interface {
	// Stats returns current cache statistics.
	Stats() Stats
}

// Waiter is an optional interface for caches with asynchronous writes.
// Wait blocks until all buffered writes have been applied, so a
// subsequent Get observes them.
type Waiter interface {
	Wait()
}

// Backend identifies a cache backend implementation.
type Backend string

// Supported backends.
const (
	BackendRistretto Backend = "ristretto"
	BackendMemory    Backend = "memory"
)

// Config selects and tunes the cache backend.
type Config struct {
	Backend   Backend         `yaml:"backend" toml:"backend"`
	Ristretto RistrettoConfig `yaml:"ristretto" toml:"ristretto"`
}

// RistrettoConfig tunes the Ristretto backend.
type RistrettoConfig struct {
	// NumCounters is the number of frequency counters (recommended: 10x max keys).
	NumCounters int64 `yaml:"num_counters" toml:"num_counters"`

	// MaxCost is the maximum total cost (bytes) held by the cache.
	MaxCost int64 `yaml:"max_cost" toml:"max_cost"`

	// BufferItems is the size of the Get buffer (default 64).
	BufferItems int64 `yaml:"buffer_items" toml:"buffer_items"`
}

// New creates a cache for the configured backend.
// An empty backend defaults to Ristretto.
func New(cfg Config) (Cache, error) {
	switch cfg.Backend {
	case BackendMemory:
		return newMemoryCache(realClock{}), nil
	case BackendRistretto, "":
		return newRistrettoCache(cfg.Ristretto)
	default:
		return nil, UnknownBackendError{Backend: string(cfg.Backend)}
	}
}
