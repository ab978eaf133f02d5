package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBeforeAndAfterTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewWithClock(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "threads:ACME", []byte(`["a"]`), 30*time.Second))

	v, ok, err := c.Get(ctx, "threads:ACME")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`["a"]`), v)

	// One tick before expiry the entry is still served.
	now = time.Unix(1029, 0)
	_, ok, _ = c.Get(ctx, "threads:ACME")
	assert.True(t, ok)

	// At the expiry instant the entry is a miss and gets evicted.
	now = time.Unix(1030, 0)
	_, ok, _ = c.Get(ctx, "threads:ACME")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "threads:ACME")
	assert.False(t, ok)
}

func TestSetUsesDefaultTTL(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewWithClock(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	now = time.Unix(59, 0)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = time.Unix(60, 0)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFlushAll(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.FlushAll(ctx))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
}

func TestMissOnUnknownKey(t *testing.T) {
	c := New(time.Minute)
	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
