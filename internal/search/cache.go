package search

import (
	"sync"
	"time"
)

// DefaultTTL is how long an ambiguous outcome waits for a menu selection.
const DefaultTTL = 10 * time.Minute

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithTTL overrides [DefaultTTL]. Non-positive values are ignored.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock injects the time source. Used by tests to step past the TTL
// without sleeping.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSizeObserver registers fn to be called with the change in entry count
// after every mutation that alters it. fn runs under the cache lock and must
// not call back into the cache.
func WithSizeObserver(fn func(delta int64)) CacheOption {
	return func(c *Cache) { c.observe = fn }
}

type cacheEntry struct {
	outcome   Outcome
	expiresAt time.Time
}

// Cache holds ambiguous outcomes keyed by request ID until the user picks a
// suggestion or the entry expires. Expired entries are evicted lazily: every
// [Cache.Put] sweeps the whole map under the same lock as the insert, so
// concurrent puts never observe a half-swept map.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	observe func(delta int64)
}

// NewCache creates an empty cache with [DefaultTTL].
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Put sweeps expired entries and then stores o under id with a fresh
// expiry, replacing any previous entry for id.
func (c *Cache) Put(id string, o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	delta := -int64(c.sweepLocked(now))
	if _, ok := c.entries[id]; !ok {
		delta++
	}
	c.entries[id] = cacheEntry{outcome: o.clone(), expiresAt: now.Add(c.ttl)}
	c.notify(delta)
}

// TryGet returns the outcome stored under id if it is no older than the
// TTL. It does not remove the entry.
func (c *Cache) TryGet(id string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || c.now().After(e.expiresAt) {
		return Outcome{}, false
	}
	return e.outcome.clone(), true
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		delete(c.entries, id)
		c.notify(-1)
	}
}

// Take atomically looks up and removes the entry for id. An expired entry is
// removed as well but reported as absent. At most one caller can take a
// given entry.
func (c *Cache) Take(id string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Outcome{}, false
	}
	delete(c.entries, id)
	c.notify(-1)
	if c.now().After(e.expiresAt) {
		return Outcome{}, false
	}
	return e.outcome, true
}

// Sweep removes every entry older than the TTL at now and returns how many
// were removed. Sweeping twice with the same now removes nothing the
// second time.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.sweepLocked(now)
	c.notify(-int64(n))
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked(now time.Time) int {
	var n int
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *Cache) notify(delta int64) {
	if c.observe != nil && delta != 0 {
		c.observe(delta)
	}
}
