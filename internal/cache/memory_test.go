package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("v"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, c.Len())
}

func TestMemory_ExpiryWithFakeClock(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("v"), 5*time.Minute))

	// Just inside the TTL
	now = now.Add(5*time.Minute - time.Second)
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	// Past the TTL: miss, and the entry is dropped on read
	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Overwrite(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("a"), time.Minute))
	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("b"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestMemory_Stats(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("v"), time.Minute))

	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	stats := c.(StatsProvider).Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.KeyCount)
}

func TestMemory_Closed(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	require.NoError(t, c.Close())

	ctx := context.Background()
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SetWithTTL(ctx, "k", nil, time.Minute), ErrClosed)
}
