package kv

import (
	"context"
	"time"

	"finboard/internal/cache"
)

// Cached is a read-through LRU in front of a slower Store. Writes go to the
// backing store first and only then refresh the cache.
type Cached struct {
	next  Store
	cache *cache.LRUCache[[]byte]
}

var _ Store = (*Cached)(nil)

func NewCached(next Store, size int, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.NewLRUCache[[]byte](size, ttl)}
}

// Cleaner exposes the underlying cache for periodic expiry sweeps.
func (c *Cached) Cleaner() cache.Cleaner {
	return c.cache
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		return append([]byte(nil), v...), true, nil
	}
	v, ok, err := c.next.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	c.cache.Set(key, append([]byte(nil), v...))
	return v, true, nil
}

func (c *Cached) Set(ctx context.Context, key string, value []byte) error {
	if err := c.next.Set(ctx, key, value); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.Set(key, append([]byte(nil), value...))
	return nil
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	c.cache.Delete(key)
	return c.next.Delete(ctx, key)
}
