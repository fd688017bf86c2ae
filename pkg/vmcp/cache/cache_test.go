package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	t.Parallel()
	c, err := New[string, int](2, time.Minute, nil)
	require.NoError(t, err)

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	t.Parallel()
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	c, err := New[string, string](4, time.Second, clock)
	require.NoError(t, err)

	c.Set("q", "echo")
	v, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, "echo", v)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("q")
	assert.False(t, ok, "entry should have expired")
}

func TestTTLCache_PurgeAndLen(t *testing.T) {
	t.Parallel()
	c, err := New[string, int](8, time.Minute, nil)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCache_EvictsLRU(t *testing.T) {
	t.Parallel()
	c, err := New[string, int](1, time.Minute, nil)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a")
	assert.False(t, ok, "least-recently-used entry should be evicted once over capacity")
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
