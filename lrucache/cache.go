/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRUCache represents an LRU cache with expiration mechanism, usage statistics and Prometheus metrics.
// Values are written once: SetIfAbsent never overwrites an unexpired entry.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	defaultTTL time.Duration

	mu      sync.Mutex
	lruList *list.List          // front is the most recently used entry
	cache   map[K]*list.Element // map of cache entries, value is a lruList element
	stats   statsCounter

	metricsCollector MetricsCollector

	now func() time.Time
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is the TTL for the cache entries. Zero means that entries never expire.
	// Please note that expired entries are not removed immediately,
	// but only when they are accessed or during periodic cleanup (see RunPeriodicCleanup).
	DefaultTTL time.Duration
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options{})
}

// NewWithOpts creates a new LRUCache with the provided maximum number of entries, metrics collector, and options.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}

	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		lruList:          list.New(),
		cache:            make(map[K]*list.Element),
		metricsCollector: metricsCollector,
		defaultTTL:       opts.DefaultTTL,
		now:              time.Now,
	}, nil
}

// Get returns a value from the cache by the provided key.
// A successful read makes the entry the most recently used one but does not prolong its TTL.
// An expired entry is removed and reported as absent.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// SetIfAbsent adds a value to the cache only if there is no unexpired entry with the same key.
// It returns true if the value was inserted.
// If the cache is full, the least recently used entry is evicted before the insertion.
func (c *LRUCache[K, V]) SetIfAbsent(key K, value V) (inserted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.cache[key]; ok {
		if !elem.Value.(*cacheEntry[K, V]).expired(now) {
			return false
		}
		c.removeElement(elem)
		c.metricsCollector.AddExpirations(1)
	}
	c.addNew(key, value, c.expiresAt(now))
	return true
}

// GetOrAdd returns a value from the cache by the provided key.
// If the key does not exist, it adds a new value to the cache.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, exists = c.get(key); exists {
		return value, exists
	}
	value = valueProvider()
	c.addNew(key, value, c.expiresAt(c.now()))
	return value, false
}

// Remove removes a value from the cache by the provided key.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metricsCollector.SetAmount(len(c.cache))
	return true
}

// Purge clears the cache and resets the accumulated usage statistics.
// All removed entries will not be counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
	c.stats.reset()
	c.metricsCollector.SetAmount(0)
}

// Len returns the number of items in the cache.
// Expired entries that have not been swept yet are counted too.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// MaxEntries returns the capacity of the cache.
func (c *LRUCache[K, V]) MaxEntries() int {
	return c.maxEntries
}

// TTL returns the TTL applied to new entries.
func (c *LRUCache[K, V]) TTL() time.Duration {
	return c.defaultTTL
}

// DeleteExpired removes all expired entries regardless of the access pattern
// and returns the number of removed entries.
func (c *LRUCache[K, V]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, elem := range c.cache {
		if elem.Value.(*cacheEntry[K, V]).expired(now) {
			c.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		c.metricsCollector.AddExpirations(removed)
	}
	c.metricsCollector.SetAmount(len(c.cache))
	return removed
}

// RunPeriodicCleanup runs a cycle of periodic cleanup of expired entries.
// Entries without expiration time are not affected.
// It's supposed to be run in a separate goroutine.
func (c *LRUCache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.DeleteExpired()
		}
	}
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	elem, hit := c.cache[key]
	if !hit {
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.now()) {
		c.removeElement(elem)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddExpirations(1)
		return value, false
	}
	c.lruList.MoveToFront(elem)
	return entry.value, true
}

func (c *LRUCache[K, V]) expiresAt(now time.Time) time.Time {
	if c.defaultTTL == 0 {
		return time.Time{}
	}
	return now.Add(c.defaultTTL)
}

func (c *LRUCache[K, V]) addNew(key K, value V, expiresAt time.Time) {
	if len(c.cache) >= c.maxEntries {
		if c.removeOldest() != nil {
			c.metricsCollector.AddEvictions(1)
		}
	}
	c.cache[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.metricsCollector.SetAmount(len(c.cache))
}

func (c *LRUCache[K, V]) removeOldest() *cacheEntry[K, V] {
	elem := c.lruList.Back()
	if elem == nil {
		return nil
	}
	return c.removeElement(elem)
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) *cacheEntry[K, V] {
	c.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.cache, entry.key)
	return entry
}
