package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultInMemoryCapacity bounds the in-process LRU. Entries beyond this are
// evicted least-recently-used first.
const defaultInMemoryCapacity = 10000

// InMemoryCache is the in-process cache backend: an LRU with per-entry TTL
// implemented by scheduled eviction timers. It stores serialized bytes so
// that Get/Insert semantics match the remote backend exactly.
type InMemoryCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, []byte]
	timers map[string]*time.Timer
}

// NewInMemoryCache creates an in-process cache with the default capacity.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithCapacity(defaultInMemoryCapacity)
}

// NewInMemoryCacheWithCapacity creates an in-process cache bounded to size entries.
func NewInMemoryCacheWithCapacity(size int) *InMemoryCache {
	l, err := lru.NewWithEvict[string, []byte](size, nil)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &InMemoryCache{
		lru:    l,
		timers: make(map[string]*time.Timer),
	}
}

// Get implements Cache.
func (c *InMemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	data, ok := c.lru.Get(key)
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Insert implements Cache.
func (c *InMemoryCache) Insert(_ context.Context, key string, value interface{}) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked(key)
	c.lru.Add(key, data)
	return nil
}

// InsertWithTTL implements Cache.
func (c *InMemoryCache) InsertWithTTL(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, data)
	c.scheduleEvictionLocked(key, ttl)
	return nil
}

// Remove implements Cache.
func (c *InMemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked(key)
	c.lru.Remove(key)
	return nil
}

// SetTTL implements Cache.
func (c *InMemoryCache) SetTTL(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Peek(key); !ok {
		return nil
	}
	c.scheduleEvictionLocked(key, ttl)
	return nil
}

// Increment implements Cache. The whole operation holds the cache lock, so
// concurrent increments on the same key are serialized.
func (c *InMemoryCache) Increment(_ context.Context, key string, amount int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	if data, ok := c.lru.Get(key); ok {
		parsed, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current += amount
	c.lru.Add(key, []byte(strconv.FormatInt(current, 10)))
	return current, nil
}

// scheduleEvictionLocked replaces any pending eviction timer for key.
// Caller must hold c.mu.
func (c *InMemoryCache) scheduleEvictionLocked(key string, ttl time.Duration) {
	c.cancelTimerLocked(key)
	c.timers[key] = time.AfterFunc(ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, key)
		c.lru.Remove(key)
	})
}

// cancelTimerLocked stops a pending eviction for key. Caller must hold c.mu.
func (c *InMemoryCache) cancelTimerLocked(key string) {
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
}
