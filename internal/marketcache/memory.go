package marketcache

import (
	"sync"
	"time"
)

// ttlCache is a process-local map whose entries expire a fixed duration
// after they were stored.
type ttlCache[V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[V any](ttl time.Duration, now func() time.Time) *ttlCache[V] {
	return &ttlCache[V]{ttl: ttl, now: now, items: make(map[string]ttlEntry[V])}
}

// Get returns the value stored under key if it is younger than the TTL.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) Set(key string, v V) {
	c.mu.Lock()
	c.items[key] = ttlEntry[V]{value: v, storedAt: c.now()}
	c.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (c *ttlCache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for k, e := range c.items {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.items, k)
			n++
		}
	}
	return n
}
