// Package cache provides a thread-safe generic map used by the in-memory stores.
package cache

import "sync"

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// SetIf stores value only when allow returns true for the current entry.
// The check and the write happen under the same lock.
func (c *Cache[K, V]) SetIf(key K, value V, allow func(current V, exists bool, all map[K]V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, exists := c.items[key]
	if !allow(current, exists, c.items) {
		return false
	}
	c.items[key] = value
	return true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
