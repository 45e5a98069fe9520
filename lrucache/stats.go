/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"time"

	"go.uber.org/atomic"
)

// Stats represents cumulative usage statistics of the cache.
// Hits and misses are recorded by the cache user (see RecordHit and RecordMiss),
// since only the caller knows whether the cache has satisfied its request.
type Stats struct {
	Hits              uint64
	Misses            uint64
	Requests          uint64
	Size              int
	TotalResponseTime time.Duration
}

// AvgResponseTime returns the average response time per request.
func (s Stats) AvgResponseTime() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalResponseTime / time.Duration(s.Requests)
}

type statsCounter struct {
	hits              atomic.Uint64
	misses            atomic.Uint64
	totalResponseTime atomic.Int64
}

func (sc *statsCounter) reset() {
	sc.hits.Store(0)
	sc.misses.Store(0)
	sc.totalResponseTime.Store(0)
}

// RecordHit records that a request was satisfied by the cache.
func (c *LRUCache[K, V]) RecordHit() {
	c.stats.hits.Inc()
	c.metricsCollector.IncHits()
}

// RecordMiss records that a request was not satisfied by the cache.
func (c *LRUCache[K, V]) RecordMiss() {
	c.stats.misses.Inc()
	c.metricsCollector.IncMisses()
}

// RecordResponseTime adds the duration of a request to the running total used for the average response time.
func (c *LRUCache[K, V]) RecordResponseTime(d time.Duration) {
	c.stats.totalResponseTime.Add(int64(d))
}

// Stats returns a snapshot of the usage statistics.
func (c *LRUCache[K, V]) Stats() Stats {
	hits, misses := c.stats.hits.Load(), c.stats.misses.Load()
	return Stats{
		Hits:              hits,
		Misses:            misses,
		Requests:          hits + misses,
		Size:              c.Len(),
		TotalResponseTime: time.Duration(c.stats.totalResponseTime.Load()),
	}
}
