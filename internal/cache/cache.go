// Package cache provides a size- and TTL-bounded in-memory cache.
//
// Eviction picks the entry with the fewest recorded hits. This approximates
// LRU by popularity rather than recency; the simpler policy is intentional
// and sufficient for the short TTLs used here.
package cache

import (
	"sync"
	"time"
)

// Default TTLs for the cache specializations.
const (
	SearchResultTTL = 10 * time.Minute
	EmbeddingTTL    = 30 * time.Minute
	MetadataTTL     = 5 * time.Minute
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	hits      int64
}

// Cache is a bounded key/value cache. All operations are safe for
// concurrent use; Set enforces size <= maxSize atomically, so no
// interleaving of concurrent writers can exceed capacity.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[K]*entry[V]
}

// New creates a cache holding at most maxSize entries with the given
// default TTL. maxSize must be positive.
func New[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[K]*entry[V], maxSize),
	}
}

// Get returns the cached value and whether it was present and unexpired.
// A hit increments the entry's hit count.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	e.hits++
	return e.value, true
}

// Set stores a value under the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL. If the cache is at
// capacity and the key is new, the entry with the fewest hits is evicted
// first (ties broken arbitrarily).
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictColdest()
	}
	c.entries[key] = &entry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// evictColdest removes the entry with the lowest hit count.
// Caller holds the lock.
func (c *Cache[K, V]) evictColdest() {
	var coldest K
	coldestHits := int64(-1)
	for k, e := range c.entries {
		if coldestHits < 0 || e.hits < coldestHits {
			coldest = k
			coldestHits = e.hits
		}
	}
	if coldestHits >= 0 {
		delete(c.entries, coldest)
	}
}

// Delete removes an entry. No-op if absent.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeleteFunc removes every entry whose key matches the predicate and
// returns the number removed. Used for invalidation by key pattern.
func (c *Cache[K, V]) DeleteFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V], c.maxSize)
}

// Cleanup sweeps expired entries and returns the number removed.
func (c *Cache[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries, including any not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits returns the recorded hit count for a key, or 0 if absent.
func (c *Cache[K, V]) Hits(key K) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.hits
	}
	return 0
}

// StartCleanup sweeps expired entries on the given interval until stop is
// closed.
func (c *Cache[K, V]) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}
