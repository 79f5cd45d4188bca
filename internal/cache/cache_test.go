package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(now *time.Time) *Cache {
	c := New(zerolog.Nop())
	c.clock = func() time.Time { return *now }
	return c
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	c := newTestCache(&now)

	c.Set(Key("decision", "2024-06-28"), "payload", time.Minute)

	v, ok := c.Get(Key("decision", "2024-06-28"))
	require.True(t, ok)
	assert.Equal(t, "payload", v)

	_, ok = c.Get(Key("decision", "2024-06-27"))
	assert.False(t, ok)
}

func TestCache_ExpiryHonored(t *testing.T) {
	now := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	c := newTestCache(&now)

	c.Set("world:2024-06-28", 42, time.Minute)

	now = now.Add(59 * time.Second)
	_, ok := c.Get("world:2024-06-28")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("world:2024-06-28")
	assert.False(t, ok)
}

func TestCache_PatternInvalidation(t *testing.T) {
	now := time.Now()
	c := newTestCache(&now)

	c.Set("decision:2024-06-27", 1, time.Hour)
	c.Set("decision:2024-06-28", 2, time.Hour)
	c.Set("world:2024-06-28", 3, time.Hour)

	removed := c.Invalidate("decision:*")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("decision:2024-06-28")
	assert.False(t, ok)
	_, ok = c.Get("world:2024-06-28")
	assert.True(t, ok)
}

func TestCache_ExactInvalidation(t *testing.T) {
	now := time.Now()
	c := newTestCache(&now)

	c.Set("forecast:2024-06-28", 1, time.Hour)
	assert.Equal(t, 1, c.Invalidate("forecast:2024-06-28"))
	assert.Equal(t, 0, c.Invalidate("forecast:2024-06-28"))
}

func TestCache_SweepDropsOnlyExpired(t *testing.T) {
	now := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	c := newTestCache(&now)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Hour)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestCache_DefaultTTL(t *testing.T) {
	now := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	c := newTestCache(&now)

	c.Set("x", 1, 0)
	now = now.Add(DefaultTTL - time.Second)
	_, ok := c.Get("x")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("x")
	assert.False(t, ok)
}
