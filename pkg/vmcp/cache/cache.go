// Package cache provides the small TTL-aware LRU caches used by discovery
// and the registry: discovery's tool-match cache keyed by snapshot version
// and query, its LLM score cache keyed by query and tool name, and the
// registry's per-identity lazy-load cache, purged wholesale on reload.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry wraps a cached value with its expiry.
type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache is a size-bounded LRU cache where entries also expire after a
// fixed TTL, matching the "size limits and TTLs" requirement for every
// discovery cache tier.
type TTLCache[K comparable, V any] struct {
	lru *lru.Cache[K, entry[V]]
	ttl time.Duration
	now func() time.Time
}

// New builds a TTLCache holding at most size entries, each valid for ttl.
// now defaults to time.Now; tests may override it to control expiry.
func New[K comparable, V any](size int, ttl time.Duration, now func() time.Time) (*TTLCache[K, V], error) {
	if now == nil {
		now = time.Now
	}
	c, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{lru: c, ttl: ttl, now: now}, nil
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.lru.Add(key, entry[V]{value: value, expires: c.now().Add(c.ttl)})
}

// Purge empties the cache, used on registry reload to invalidate the
// registry's per-identity lazy-load cache wholesale.
func (c *TTLCache[K, V]) Purge() { c.lru.Purge() }

// Len returns the number of entries currently cached (including possibly
// expired ones not yet evicted).
func (c *TTLCache[K, V]) Len() int { return c.lru.Len() }
