package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryCache is an in-process CacheInterface backend. Values round-trip
// through JSON so reads see the same shapes a Redis-backed cache returns.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Connect(url string) error { return nil }
func (c *MemoryCache) Disconnect() error        { return nil }

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	marshaledValue, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = marshaledValue
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key does not exist")
	}

	var result interface{}
	err := json.Unmarshal(value, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	return nil
}
