package cache

import (
	"sync"
	"time"
)

// Cache is a single-slot TTL memo. Each fetcher holds one: a fetch cycle
// reads it first, and a successful fetch writes it. Empty results are written
// too, so a genuinely clear day does not hammer the portal. Failed fetches
// must not write, which makes the next call retry immediately instead of
// waiting out the TTL.
type Cache[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	val       T
	fetchedAt time.Time
	now       func() time.Time
}

func New[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value and whether it is still fresh.
func (c *Cache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return c.val, true
}

// Put stores v and restarts the TTL window.
func (c *Cache[T]) Put(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = v
	c.fetchedAt = c.now()
}
