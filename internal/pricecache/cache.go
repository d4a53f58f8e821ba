// Package pricecache provides the in-process TTL memoization map shared by
// quote computations. Entries go stale rather than being pushed out: reads
// check age against the TTL and a size-triggered sweep drops expired entries
// when the map grows past the threshold. Writes to pricing data must call
// Clear explicitly; the cache never observes them.
package pricecache

import (
	"sync"
	"time"
)

// DefaultSweepThreshold is the entry count above which Set sweeps expired
// entries.
const DefaultSweepThreshold = 1000

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a concurrency-safe TTL map. The zero value is not usable; use New.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]entry
	ttl       time.Duration
	threshold int
	now       func() time.Time
}

// New constructs a cache with the given TTL. A sweepThreshold of zero or less
// uses DefaultSweepThreshold.
func New(ttl time.Duration, sweepThreshold int) *Cache {
	if sweepThreshold <= 0 {
		sweepThreshold = DefaultSweepThreshold
	}
	return &Cache{
		entries:   make(map[string]entry),
		ttl:       ttl,
		threshold: sweepThreshold,
		now:       time.Now,
	}
}

// Get returns the cached value for key when it is younger than the TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores the value under key, overwriting any previous entry. When the
// map has grown past the sweep threshold, expired entries are purged first.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > c.threshold {
		c.sweepLocked()
	}
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// Clear drops every entry. Administrators trigger this after editing price
// lists or formulas.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	for key, e := range c.entries {
		if e.storedAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}
