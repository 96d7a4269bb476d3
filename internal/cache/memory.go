package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache. Expired entries are hidden on read and
// purged by a janitor goroutine that stops on Close.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMemoryCache creates a MemoryCache whose janitor runs every cleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
		done:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.janitor(cleanupInterval)

	return c
}

// Put stores a copy of value under key. A non-positive ttl stores nothing.
func (c *MemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	c.items[key] = memoryItem{value: buf, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	return nil
}

// Get returns a copy of the value stored under key.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(item.expiresAt) {
		return nil, false, nil
	}

	buf := make([]byte, len(item.value))
	copy(buf, item.value)
	return buf, true, nil
}

// Forget removes key. Removing a missing key is not an error.
func (c *MemoryCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) janitor(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *MemoryCache) deleteExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
		}
	}
}
