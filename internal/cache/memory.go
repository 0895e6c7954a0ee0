package cache

import (
	"context"
	"sync"
	"time"
)

// clock abstracts time for deterministic expiry tests.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// memoryCache is a locked-map Cache with synchronous writes.
// Unlike Ristretto it has no admission policy and no size bound, so it
// is only suitable for tests and small single-tenant deployments.
type memoryCache struct {
	entries map[string]memoryEntry
	clk     clock
	mu      sync.RWMutex
	closed  bool

	hits   uint64
	misses uint64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

var (
	_ Cache         = (*memoryCache)(nil)
	_ StatsProvider = (*memoryCache)(nil)
)

func newMemoryCache(clk clock) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryEntry),
		clk:     clk,
	}
}

// NewMemory creates a memory-backed cache. Exposed for tests and for the
// memory backend of New.
func NewMemory() Cache {
	return newMemoryCache(realClock{})
}

// NewMemoryWithClock creates a memory-backed cache with an injected time
// source so expiry can be tested without sleeping.
func NewMemoryWithClock(now func() time.Time) Cache {
	return newMemoryCache(funcClock(now))
}

type funcClock func() time.Time

func (f funcClock) Now() time.Time { return f() }

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	entry, ok := m.entries[key]
	if !ok || m.clk.Now().After(entry.expiresAt) {
		if ok {
			delete(m.entries, key)
		}
		m.misses++
		return nil, ErrNotFound
	}

	m.hits++
	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, nil
}

func (m *memoryCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	m.entries[key] = memoryEntry{
		value:     valueCopy,
		expiresAt: m.clk.Now().Add(ttl),
	}
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.entries, key)
	return nil
}

func (m *memoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *memoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	return nil
}

// Stats returns current cache statistics.
func (m *memoryCache) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Hits:     m.hits,
		Misses:   m.misses,
		KeyCount: uint64(len(m.entries)),
	}
}
