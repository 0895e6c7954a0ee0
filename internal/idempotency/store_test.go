package idempotency_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/aoai-relay/internal/cache"
	"github.com/omarluq/aoai-relay/internal/idempotency"
)

// fakeClock is a mutable time source shared by the store and the cache.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, cfg idempotency.Config) (*idempotency.Store, *fakeClock) {
	t.Helper()

	clk := newFakeClock()
	c := cache.NewMemoryWithClock(clk.Now)
	t.Cleanup(func() { _ = c.Close() })
	return idempotency.NewWithClock(c, cfg, clk.Now), clk
}

func TestStore_HitWithinLiveWindow(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, idempotency.Config{})
	ctx := context.Background()

	payload := []byte(`{"id":"cmpl-1","choices":[{"message":{"content":"hello"}}]}`)
	require.NoError(t, store.Put(ctx, "alice", "req-1", payload))

	clk.Advance(4 * time.Minute)

	got, ok, err := store.Get(ctx, "alice", "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got, "cached payload must be byte-identical")
}

func TestStore_MissAfterLiveWindow(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, idempotency.Config{})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", "req-1", []byte(`{"id":"x"}`)))

	clk.Advance(5 * time.Minute)

	_, ok, err := store.Get(ctx, "alice", "req-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry exactly at the live window is stale")

	// The stale entry is not deleted on read.
	assert.Equal(t, 1, store.Len())
}

func TestStore_MissForUnknownKey(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, idempotency.Config{})

	_, ok, err := store.Get(context.Background(), "alice", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_KeysNamespacedByUser(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, idempotency.Config{})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", "req-1", []byte(`{"owner":"alice"}`)))

	_, ok, err := store.Get(ctx, "bob", "req-1")
	require.NoError(t, err)
	assert.False(t, ok, "bob must not see alice's cached response")

	got, ok, err := store.Get(ctx, "alice", "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"owner":"alice"}`, string(got))
}

func TestStore_PutOverwrites(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, idempotency.Config{})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", "req-1", []byte(`{"v":1}`)))
	require.NoError(t, store.Put(ctx, "alice", "req-1", []byte(`{"v":2}`)))

	got, ok, err := store.Get(ctx, "alice", "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(got))
	assert.Equal(t, 1, store.Len())
}

func TestStore_SweepRemovesOldEntriesPastThreshold(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, idempotency.Config{SweepThreshold: 10})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("old-%d", i)
		require.NoError(t, store.Put(ctx, "alice", key, []byte(`{"gen":"old"}`)))
	}

	// Age the first batch past retention, then push the store over the
	// threshold to trigger the inline sweep.
	clk.Advance(11 * time.Minute)
	require.NoError(t, store.Put(ctx, "alice", "fresh", []byte(`{"gen":"new"}`)))

	assert.Equal(t, 1, store.Len(), "sweep keeps only the fresh entry")

	got, ok, err := store.Get(ctx, "alice", "fresh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"gen":"new"}`, string(got))
}

func TestStore_NoSweepBelowThreshold(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, idempotency.Config{SweepThreshold: 100})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(ctx, "alice", fmt.Sprintf("k-%d", i), []byte(`{}`)))
	}
	clk.Advance(11 * time.Minute)
	require.NoError(t, store.Put(ctx, "alice", "later", []byte(`{}`)))

	// Below the threshold nothing is swept, stale entries linger.
	assert.Equal(t, 6, store.Len())
}

func TestStore_RistrettoBackendRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := cache.New(cache.Config{Backend: cache.BackendRistretto})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	store := idempotency.New(c, idempotency.Config{})
	ctx := context.Background()

	payload := []byte(`{"id":"cmpl-9"}`)
	require.NoError(t, store.Put(ctx, "carol", "req-9", payload))

	got, ok, err := store.Get(ctx, "carol", "req-9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}
