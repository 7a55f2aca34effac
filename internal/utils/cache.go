package utils

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a size-bounded LRU whose entries also expire after a TTL.
type Cache[K comparable, V any] struct {
	lruCache *lru.Cache[K, cacheItem[V]]
	ttl      time.Duration
	now      func() time.Time
}

func NewCache[K comparable, V any](size int, ttl time.Duration) (*Cache[K, V], error) {
	if size <= 0 {
		size = 500
	}
	l, err := lru.New[K, cacheItem[V]](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Cache[K, V]{lruCache: l, ttl: ttl, now: time.Now}, nil
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.lruCache.Add(key, cacheItem[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Get returns the cached value, dropping it if it has expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	item, ok := c.lruCache.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().After(item.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return item.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.lruCache.Remove(key)
}

func (c *Cache[K, V]) Len() int {
	return c.lruCache.Len()
}
