package ims

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds loaded values until they are invalidated. Concurrent misses on
// one key share a single load. There is no expiry.
type Cache[V any] struct {
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]V
	gens    map[string]uint64
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{entries: map[string]V{}, gens: map[string]uint64{}}
}

// GetOrLoad returns the cached value of key or runs load once for all
// concurrent callers. A load that races an Invalidate is returned but not stored.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gens[key]
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[key] == gen {
			c.entries[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate evicts keys and detaches any in-flight load from them.
func (c *Cache[V]) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.gens[k]++
		c.group.Forget(k)
	}
}

// InvalidatePrefix evicts every stored key starting with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	var keys []string
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	c.Invalidate(keys...)
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
