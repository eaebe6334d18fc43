package enrichment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache is a per-user TTL cache for enriched views. Entries expire by
// read-time comparison; there is no background eviction, stale entries
// are dropped on the next Get or Invalidate.
type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// NewCache builds a cache with the given entry lifetime. now may be nil,
// in which case time.Now is used.
func NewCache[T any](ttl time.Duration, now func() time.Time) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		ttl:     ttl,
		now:     now,
		entries: make(map[uuid.UUID]cacheEntry[T]),
	}
}

// Get returns the cached value for userID if present and not expired.
func (c *Cache[T]) Get(userID uuid.UUID) (T, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.Invalidate(userID)
		var zero T
		return zero, false
	}
	return entry.value, true
}

// Set stores value for userID until the TTL elapses.
func (c *Cache[T]) Set(userID uuid.UUID, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry[T]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops the cached value for one user. Mutations call this so
// the next read rebuilds from the store.
func (c *Cache[T]) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
