// Package cache provides the in-memory TTL cache that shields repeated
// reads from network latency: per-entry expiry, lazy eviction, and
// blunt full invalidation after writes.
package cache

import (
	"sync"
	"time"
)

// entry pairs a cached value with its expiry. A zero expiresAt means
// the entry never expires.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a mutex-protected key/value store with per-entry TTL.
// Expired entries are removed when read. There is no size bound beyond
// TTL, which is fine for the few hundred documents a tenant holds but
// is a known scaling limit.
type Cache struct {
	name string

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache. The name labels this cache's metrics.
func New(name string) *Cache {
	c := &Cache{
		name:    name,
		entries: make(map[string]entry),
		now:     time.Now,
	}
	metricEntries.WithLabelValues(name).Set(0)
	return c
}

// Get returns the value stored under key. It reports false both when
// the key was never set and when the entry has expired; an expired
// entry is removed on the way out.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metricMisses.WithLabelValues(c.name).Inc()
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		metricEvictions.WithLabelValues(c.name).Inc()
		metricMisses.WithLabelValues(c.name).Inc()
		metricEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
		return nil, false
	}
	metricHits.WithLabelValues(c.name).Inc()
	return e.value, true
}

// Set stores value under key, unconditionally replacing any previous
// entry and recomputing the expiry. A non-positive ttl stores the
// value without expiry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	metricEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
}

// Clear drops the given keys, or every entry when called with none.
// Writers use the zero-argument form after any mutation that could
// invalidate derived reads; reads are idempotent and cheap to
// repopulate, so full invalidation beats precise key tracking here.
func (c *Cache) Clear(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(keys) == 0 {
		c.entries = make(map[string]entry)
	} else {
		for _, k := range keys {
			delete(c.entries, k)
		}
	}
	metricEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
}

// Len reports the number of stored entries, expired-but-unread ones
// included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
