package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryConfig configures a MemoryCache.
type MemoryConfig struct {
	// TTL is the lifetime of every entry. Zero means DefaultTTL.
	TTL time.Duration

	// SweepInterval enables a background goroutine that removes expired
	// entries. Zero disables it; entries are then only removed when an
	// expired key is looked up.
	SweepInterval time.Duration

	// MaxEntries bounds the cache. When exceeded the oldest stored entry is
	// evicted. Zero means unbounded.
	MaxEntries int

	// Clock overrides time.Now, for tests.
	Clock Clock
}

type entry struct {
	key       string
	payload   json.RawMessage
	expiresAt time.Time
	elem      *list.Element
}

// MemoryCache is an in-process Cache backed by a map.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List // insertion order, oldest at front
	ttl     time.Duration
	max     int
	now     Clock

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemory creates a MemoryCache. When cfg.SweepInterval is set the caller
// must Close the cache to stop the sweeper.
func NewMemory(cfg MemoryConfig) *MemoryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	c := &MemoryCache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     cfg.TTL,
		max:     cfg.MaxEntries,
		now:     cfg.Clock,
	}

	if cfg.SweepInterval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop(cfg.SweepInterval)
	}

	return c
}

// Lookup implements Cache. An expired entry is deleted and reported as a miss.
func (c *MemoryCache) Lookup(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Store may have refreshed the entry.
		if cur, ok := c.entries[key]; ok && cur == e {
			c.removeLocked(e)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.payload, true
}

// Store implements Cache. Storing an existing key replaces its payload and
// restarts its TTL.
func (c *MemoryCache) Store(_ context.Context, key string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	e := &entry{
		key:       key,
		payload:   payload,
		expiresAt: c.now().Add(c.ttl),
	}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e

	if c.max > 0 {
		for len(c.entries) > c.max {
			oldest := c.order.Front()
			if oldest == nil {
				break
			}
			c.removeLocked(oldest.Value.(*entry))
		}
	}
}

// Len returns the number of entries held, including expired ones not yet
// removed.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper, if any. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	if c.stop == nil {
		return nil
	}
	c.once.Do(func() {
		close(c.stop)
		<-c.done
	})
	return nil
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *MemoryCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.order.Remove(e.elem)
}
