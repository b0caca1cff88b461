package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memoryCache is a process-local backend used by tests and single-node
// development setups.
type memoryCache struct {
	mu         sync.RWMutex
	items      map[string]*memoryItem
	defaultTTL time.Duration
}

type memoryItem struct {
	value     interface{}
	expiresAt time.Time
}

// NewMemoryCache returns an in-memory cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) Cache {
	return &memoryCache{
		items:      make(map[string]*memoryItem),
		defaultTTL: defaultTTL,
	}
}

func (c *memoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	return item.value, true
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &memoryItem{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *memoryCache) Exists(ctx context.Context, key string) bool {
	_, found := c.Get(ctx, key)
	return found
}

func (c *memoryCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if matchPattern(key, pattern) {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *memoryCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		c.items[key] = &memoryItem{value: delta, expiresAt: time.Now().Add(c.defaultTTL)}
		return delta, nil
	}

	switch v := item.value.(type) {
	case int64:
		item.value = v + delta
		return v + delta, nil
	case int:
		n := int64(v) + delta
		item.value = n
		return n, nil
	case float64:
		n := int64(v) + delta
		item.value = n
		return n, nil
	default:
		return 0, fmt.Errorf("value at %q is not numeric", key)
	}
}

func (c *memoryCache) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, exists := c.items[key]; exists {
		item.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

func (c *memoryCache) GetTTL(ctx context.Context, key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, exists := c.items[key]
	if !exists {
		return 0, false
	}
	remaining := time.Until(item.expiresAt)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

func (c *memoryCache) Health(ctx context.Context) error {
	return nil
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*memoryItem)
	return nil
}
