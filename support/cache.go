package support

import (
	"sync"
	"time"
)

// EvictFunc is called after an entry leaves the cache, it must not call back into the cache
type EvictFunc[V any] func(key string, value V)

// Cache is a TTL cache, entries expire ttl after their last access
type Cache[V any] struct {
	ttl     time.Duration
	onEvict EvictFunc[V]

	mu      sync.Mutex
	entries map[string]*cacheEntry[V]

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// NewCache creates a cache, a ttl <= 0 disables expiry. A non-zero sweep
// interval starts a janitor that evicts expired entries until Close.
func NewCache[V any](ttl, sweep time.Duration, onEvict EvictFunc[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:     ttl,
		onEvict: onEvict,
		entries: make(map[string]*cacheEntry[V]),
		stop:    make(chan struct{}),
		now:     time.Now,
	}

	if ttl > 0 && sweep > 0 {
		go c.janitor(sweep)
	}

	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expired(e) {
		delete(c.entries, key)
		c.mu.Unlock()
		c.evicted(key, e.value)
		var zero V
		return zero, false
	}
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	c.touch(e)
	c.mu.Unlock()
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	old, replaced := c.entries[key]
	e := &cacheEntry[V]{value: value}
	c.touch(e)
	c.entries[key] = e
	c.mu.Unlock()

	if replaced {
		c.evicted(key, old.value)
	}
}

// Invalidate removes the entry, returns false if it was not cached
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok {
		c.evicted(key, e.value)
	}
	return ok
}

// Purge removes all entries
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cacheEntry[V])
	c.mu.Unlock()

	for key, e := range entries {
		c.evicted(key, e.value)
	}
}

// Expire evicts the entries whose ttl elapsed and returns how many were removed
func (c *Cache[V]) Expire() int {
	c.mu.Lock()
	expired := make(map[string]V)
	for key, e := range c.entries {
		if c.expired(e) {
			expired[key] = e.value
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for key, v := range expired {
		c.evicted(key, v)
	}
	return len(expired)
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Close stops the janitor, entries are kept
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache[V]) janitor(sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Expire()
		}
	}
}

func (c *Cache[V]) touch(e *cacheEntry[V]) {
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
}

func (c *Cache[V]) expired(e *cacheEntry[V]) bool {
	return c.ttl > 0 && !c.now().Before(e.expires)
}

func (c *Cache[V]) evicted(key string, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}
