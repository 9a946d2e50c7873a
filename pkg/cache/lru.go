package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache bounds memory by entry count. The expirable LRU has a single TTL
// for every entry, so per-call expirations are ignored.
type lruCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, []byte]
}

// NewLRUCache creates a size-bounded in-process cache.
func NewLRUCache(config Config) (Cache, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("lru cache size must be positive, got %d", config.Size)
	}
	return &lruCache{
		lru: expirable.NewLRU[string, []byte](config.Size, nil, config.DefaultTTL),
	}, nil
}

func (c *lruCache) Get(ctx context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	c.lru.Add(key, value)
	return nil
}

func (c *lruCache) SetNX(ctx context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Peek(key); ok {
		return false, nil
	}
	c.lru.Add(key, value)
	return true, nil
}

func (c *lruCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *lruCache) Close() error {
	c.lru.Purge()
	return nil
}
