// Package cache provides the in-memory TTL cache for computed pipeline
// payloads. Entries are keyed (endpoint, asOf) so replays at the same
// reference date reuse earlier work.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 15 * time.Minute

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   func() time.Time
	log     zerolog.Logger
}

// New creates a new cache
func New(log zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		clock:   time.Now,
		log:     log.With().Str("component", "cache").Logger(),
	}
}

// Key builds the canonical cache key for an endpoint at a reference date.
func Key(endpoint, asOf string) string {
	return endpoint + ":" + asOf
}

// Get returns the cached value when present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value with a TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.clock().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate removes every entry matching the pattern. A trailing '*' acts
// as a prefix wildcard; anything else is an exact key.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		for key := range c.entries {
			if strings.HasPrefix(key, prefix) {
				delete(c.entries, key)
				removed++
			}
		}
	} else if _, ok := c.entries[pattern]; ok {
		delete(c.entries, pattern)
		removed = 1
	}

	if removed > 0 {
		c.log.Debug().Str("pattern", pattern).Int("removed", removed).Msg("Cache invalidated")
	}
	return removed
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
