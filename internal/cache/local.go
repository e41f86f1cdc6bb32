package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/davrx/cachefront/internal/metrics"
)

const (
	// DefaultLocalCapacity bounds the number of entries held in process.
	DefaultLocalCapacity = 1000

	// DefaultSweepInterval is how often the background sweep reaps
	// expired entries.
	DefaultSweepInterval = 60 * time.Second
)

// LocalCache is a bounded in-process TTL cache. Insertion order is tracked
// explicitly (map + list) so that capacity eviction removes the oldest
// entries deterministically rather than relying on map iteration order.
// When full it evicts the oldest 10% of entries before inserting.
type LocalCache struct {
	mu       sync.RWMutex
	entries  map[string]*localEntry
	order    *list.List // front = oldest insertion; elements hold keys
	capacity int
	closed   bool
	stop     chan struct{}

	counters map[string]*localCounter
}

type localEntry struct {
	value     []byte
	expiresAt time.Time
	elem      *list.Element
}

func (e *localEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// localCounter backs Increment on the local tier. Counters live beside the
// byte-value entries so a counter is never evicted by value churn.
type localCounter struct {
	n         int64
	expiresAt time.Time
}

// NewLocalCache creates a bounded local cache and starts its expiry sweep.
// capacity <= 0 selects DefaultLocalCapacity; sweepInterval <= 0 selects
// DefaultSweepInterval. Close stops the sweep.
func NewLocalCache(capacity int, sweepInterval time.Duration) *LocalCache {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &LocalCache{
		entries:  make(map[string]*localEntry),
		order:    list.New(),
		capacity: capacity,
		stop:     make(chan struct{}),
		counters: make(map[string]*localCounter),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	if ok && !entry.expired() {
		// Copy so callers cannot mutate the cached value.
		cp := make([]byte, len(entry.value))
		copy(cp, entry.value)
		c.mu.RUnlock()
		return cp, nil
	}
	c.mu.RUnlock()

	if ok {
		// Lazy removal of the expired entry.
		c.mu.Lock()
		if entry, ok := c.entries[key]; ok && entry.expired() {
			c.removeLocked(key, entry)
		}
		c.mu.Unlock()
	}
	return nil, ErrNotFound
}

func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	expiresAt := time.Now().Add(ttl)

	if entry, ok := c.entries[key]; ok {
		// Overwrite keeps the original insertion-order position.
		entry.value = cp
		entry.expiresAt = expiresAt
		return nil
	}

	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &localEntry{value: cp, expiresAt: expiresAt, elem: elem}
	metrics.SetLocalEntries(len(c.entries))
	return nil
}

// evictOldestLocked removes the oldest 10% of entries (at least one) in
// insertion order to make room for new inserts.
func (c *LocalCache) evictOldestLocked() {
	n := c.capacity / 10
	if n < 1 {
		n = 1
	}
	evicted := 0
	for evicted < n {
		front := c.order.Front()
		if front == nil {
			break
		}
		key := front.Value.(string)
		c.removeLocked(key, c.entries[key])
		evicted++
	}
	metrics.RecordLocalEvictions(evicted)
}

func (c *LocalCache) removeLocked(key string, entry *localEntry) {
	if entry == nil {
		return
	}
	c.order.Remove(entry.elem)
	delete(c.entries, key)
	metrics.SetLocalEntries(len(c.entries))
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key, c.entries[key])
	return nil
}

func (c *LocalCache) DeletePattern(_ context.Context, pattern string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(key, entry)
		}
	}
	for key := range c.counters {
		if re.MatchString(key) {
			delete(c.counters, key)
		}
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return ok && !entry.expired(), nil
}

func (c *LocalCache) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	ctr, ok := c.counters[key]
	if !ok || now.After(ctr.expiresAt) {
		ctr = &localCounter{expiresAt: now.Add(ttl)}
		c.counters[key] = ctr
	}
	ctr.n++
	return ctr.n, nil
}

// Clear drops all entries and counters.
func (c *LocalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*localEntry)
	c.order.Init()
	c.counters = make(map[string]*localCounter)
	metrics.SetLocalEntries(0)
}

// Len reports the current number of value entries.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *LocalCache) Ping(_ context.Context) error { return nil }

func (c *LocalCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	c.entries = make(map[string]*localEntry)
	c.order.Init()
	c.counters = make(map[string]*localCounter)
	return nil
}

// sweepLoop reaps expired entries so memory stays bounded even when keys
// are never read again. Each pass holds the write lock once; the map is
// capacity-bounded so a pass is short.
func (c *LocalCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *LocalCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			c.removeLocked(key, entry)
		}
	}
	for key, ctr := range c.counters {
		if now.After(ctr.expiresAt) {
			delete(c.counters, key)
		}
	}
}
