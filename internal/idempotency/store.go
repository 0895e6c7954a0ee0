// Package idempotency deduplicates retried requests by caller-supplied
// key. A stored response is served for a short live window; a longer
// retention window bounds how long stale entries linger before a sweep
// removes them.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/omarluq/aoai-relay/internal/cache"
)

// Defaults.
const (
	// DefaultLiveWindow is how long a stored response is served.
	DefaultLiveWindow = 5 * time.Minute

	// DefaultRetention is how long stale entries may linger before a
	// sweep removes them.
	DefaultRetention = 10 * time.Minute

	// DefaultSweepThreshold is the entry count above which a put
	// triggers an inline sweep.
	DefaultSweepThreshold = 1000
)

// keyPrefix namespaces store keys inside the shared cache, and the
// caller identity namespaces keys from different users so one caller
// can never replay another's cached response.
const keyPrefix = "idem:"

// Config tunes the store.
type Config struct {
	LiveWindow     time.Duration
	Retention      time.Duration
	SweepThreshold int
}

func (c Config) withDefaults() Config {
	if c.LiveWindow <= 0 {
		c.LiveWindow = DefaultLiveWindow
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.SweepThreshold <= 0 {
		c.SweepThreshold = DefaultSweepThreshold
	}
	return c
}

// Store maps (caller, idempotency key) to a previously produced
// response body. Writes are last-write-wins. Safe for concurrent use.
type Store struct {
	cache cache.Cache
	cfg   Config
	now   func() time.Time

	// index tracks insertion times so the sweep can enumerate entries;
	// the cache backends do not support iteration.
	mu    sync.Mutex
	index map[string]time.Time
}

// New creates a Store over the given cache.
func New(c cache.Cache, cfg Config) *Store {
	return NewWithClock(c, cfg, time.Now)
}

// NewWithClock creates a Store with an injected time source so window
// semantics can be tested without sleeping.
func NewWithClock(c cache.Cache, cfg Config, now func() time.Time) *Store {
	return &Store{
		cache: c,
		cfg:   cfg.withDefaults(),
		now:   now,
		index: make(map[string]time.Time),
	}
}

func storeKey(user, key string) string {
	return keyPrefix + user + ":" + key
}

// Get returns the stored response for (user, key) if one exists and is
// still inside the live window. A stale entry is reported as a miss but
// left in place; only the sweep removes it.
func (s *Store) Get(ctx context.Context, user, key string) ([]byte, bool, error) {
	raw, err := s.cache.Get(ctx, storeKey(user, key))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	insertedAt := gjson.GetBytes(raw, "inserted_at")
	payload := gjson.GetBytes(raw, "payload")
	if !insertedAt.Exists() || !payload.Exists() {
		// Unreadable envelope, treat as a miss.
		return nil, false, nil
	}

	age := s.now().Sub(time.Unix(0, insertedAt.Int()))
	if age >= s.cfg.LiveWindow {
		return nil, false, nil
	}
	return []byte(payload.Raw), true, nil
}

// Put stores a response for (user, key), overwriting unconditionally.
// The entry expires from the cache after the retention window; an
// inline sweep runs when the store grows past the configured threshold.
func (s *Store) Put(ctx context.Context, user, key string, payload []byte) error {
	insertedAt := s.now()

	envelope := []byte(`{}`)
	envelope, err := sjson.SetBytes(envelope, "inserted_at", insertedAt.UnixNano())
	if err != nil {
		return err
	}
	envelope, err = sjson.SetRawBytes(envelope, "payload", payload)
	if err != nil {
		return err
	}

	namespaced := storeKey(user, key)
	if err := s.cache.SetWithTTL(ctx, namespaced, envelope, s.cfg.Retention); err != nil {
		return err
	}
	if w, ok := s.cache.(cache.Waiter); ok {
		w.Wait()
	}

	s.mu.Lock()
	s.index[namespaced] = insertedAt
	needSweep := len(s.index) > s.cfg.SweepThreshold
	s.mu.Unlock()

	if needSweep {
		s.sweep(ctx)
	}
	return nil
}

// sweep removes every tracked entry older than the retention window.
func (s *Store) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.Retention)

	s.mu.Lock()
	expired := make([]string, 0, len(s.index))
	for key, insertedAt := range s.index {
		if insertedAt.Before(cutoff) {
			expired = append(expired, key)
			delete(s.index, key)
		}
	}
	s.mu.Unlock()

	for _, key := range expired {
		_ = s.cache.Delete(ctx, key)
	}
}

// Len returns the number of tracked entries, including stale ones not
// yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
