package kv

import (
	"context"
	"time"

	"expenses/internal/cache"
)

// Cached is a read-through cache in front of another Store. Writes go to the
// backend first and only refresh the cache once they succeed.
type Cached struct {
	backend Store
	cache   *cache.Blobs
}

var _ Store = (*Cached)(nil)

func NewCached(backend Store, size int, ttl time.Duration) *Cached {
	return &Cached{
		backend: backend,
		cache:   cache.NewBlobs(size, ttl),
	}
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, v)
	return v, nil
}

func (c *Cached) Set(ctx context.Context, key string, value []byte) error {
	if err := c.backend.Set(ctx, key, value); err != nil {
		c.cache.Forget(key)
		return err
	}
	c.cache.Put(key, value)
	return nil
}

// Cache exposes the underlying cache so a cache.Manager can clean it.
func (c *Cached) Cache() *cache.Blobs {
	return c.cache
}

// Backend returns the wrapped store.
func (c *Cached) Backend() Store {
	return c.backend
}

// Close closes the backend when it holds resources.
func (c *Cached) Close() error {
	if cl, ok := c.backend.(Closer); ok {
		return cl.Close()
	}
	return nil
}
