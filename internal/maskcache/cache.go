// Package maskcache implements the request-scoped memoization cache for
// C9 adapter calls: masks and other lane results keyed on
// (model, preprocessed-content-hash[, prompt]) so identical work within
// one request is never paid for twice. Its mutex makes it safe for
// concurrent callers, although Lane B, its only user, calls it after the
// frame's pooled lanes have finished.
package maskcache

import "sync"

import "github.com/junkvolume/pileq/internal/adapters"

// Cache is a plain in-memory map guarded by a mutex. It is constructed
// fresh per quote request and discarded at the end of the request —
// there is no cross-request persistence by design.
type Cache struct {
	mu    sync.Mutex
	items map[adapters.CacheKey]any
}

func New() *Cache {
	return &Cache{items: make(map[adapters.CacheKey]any)}
}

func (c *Cache) Get(key adapters.CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *Cache) Put(key adapters.CacheKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}
