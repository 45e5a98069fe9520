/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	Name string
}

type testMetrics struct {
	Amount      int
	Hits        int
	Misses      int
	Evictions   int
	Expirations int
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)
}

func TestLRUCache(t *testing.T) {
	users := map[int]User{1: {"Bob"}, 42: {"John"}, 777: {"Ivan"}}

	fillCache := func(cache *LRUCache[int, User]) {
		for _, key := range []int{1, 42, 777} {
			cache.SetIfAbsent(key, users[key])
		}
	}

	tests := []struct {
		name        string
		maxEntries  int
		fn          func(t *testing.T, cache *LRUCache[int, User])
		wantMetrics testMetrics
	}{
		{
			name:       "attempt to get not existing keys",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				for key := range users {
					_, found := cache.Get(key)
					require.False(t, found)
				}
			},
		},
		{
			name:       "add entries and get them",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				fillCache(cache)
				for key, wantUser := range users {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, wantUser, val)
				}
			},
			wantMetrics: testMetrics{Amount: len(users)},
		},
		{
			name:       "add entries with evictions",
			maxEntries: len(users) - 1,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				fillCache(cache) // key 1 will be evicted.

				_, found := cache.Get(1)
				require.False(t, found)
				for _, key := range []int{42, 777} {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, users[key], val)
				}
			},
			wantMetrics: testMetrics{Amount: len(users) - 1, Evictions: 1},
		},
		{
			name:       "read refreshes recency",
			maxEntries: 2,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				require.True(t, cache.SetIfAbsent(1, users[1]))
				require.True(t, cache.SetIfAbsent(42, users[42]))
				_, found := cache.Get(1)
				require.True(t, found)

				require.True(t, cache.SetIfAbsent(777, users[777])) // key 42 is the least recently used one now.

				_, found = cache.Get(42)
				require.False(t, found)
				_, found = cache.Get(1)
				require.True(t, found)
				_, found = cache.Get(777)
				require.True(t, found)
			},
			wantMetrics: testMetrics{Amount: 2, Evictions: 1},
		},
		{
			name:       "value is written once until expiry",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				require.True(t, cache.SetIfAbsent(1, User{"Bob"}))
				require.False(t, cache.SetIfAbsent(1, User{"Alice"}))
				val, found := cache.Get(1)
				require.True(t, found)
				require.Equal(t, User{"Bob"}, val)
			},
			wantMetrics: testMetrics{Amount: 1},
		},
		{
			name:       "remove entries",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				fillCache(cache)
				require.False(t, cache.Remove(100500))
				require.True(t, cache.Remove(42))
				require.False(t, cache.Remove(42))
				_, found := cache.Get(42)
				require.False(t, found)
			},
			wantMetrics: testMetrics{Amount: len(users) - 1},
		},
		{
			name:       "purge clears entries and statistics",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[int, User]) {
				fillCache(cache)
				cache.RecordHit()
				cache.RecordMiss()
				cache.RecordResponseTime(time.Second)

				cache.Purge()

				require.Equal(t, 0, cache.Len())
				require.Equal(t, Stats{}, cache.Stats())
			},
			wantMetrics: testMetrics{Amount: 0, Hits: 1, Misses: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, metricsCollector := makeCache(t, tt.maxEntries, 0)
			tt.fn(t, cache)
			assertMetrics(t, tt.wantMetrics, metricsCollector)
		})
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	clock := newFakeClock()
	cache, metricsCollector := makeCache(t, 2, time.Second)
	cache.now = clock.Now

	require.True(t, cache.SetIfAbsent(1, User{"A"}))
	require.True(t, cache.SetIfAbsent(2, User{"B"}))
	require.Equal(t, 2, cache.Len())

	require.True(t, cache.SetIfAbsent(3, User{"C"})) // A is evicted.
	_, found := cache.Get(1)
	require.False(t, found)
	_, found = cache.Get(2)
	require.True(t, found)
	_, found = cache.Get(3)
	require.True(t, found)

	clock.Advance(1100 * time.Millisecond)

	_, found = cache.Get(2)
	require.False(t, found)
	_, found = cache.Get(3)
	require.False(t, found)
	require.Equal(t, 0, cache.Len())

	assertMetrics(t, testMetrics{Amount: 0, Evictions: 1, Expirations: 2}, metricsCollector)
}

func TestLRUCache_ExpirationBoundary(t *testing.T) {
	clock := newFakeClock()
	cache, _ := makeCache(t, 10, time.Second)
	cache.now = clock.Now

	require.True(t, cache.SetIfAbsent(1, User{"A"}))

	clock.Advance(time.Second - time.Millisecond)
	_, found := cache.Get(1)
	require.True(t, found, "read must not prolong TTL")

	clock.Advance(time.Millisecond)
	_, found = cache.Get(1)
	require.False(t, found)
}

func TestLRUCache_SetIfAbsentReplacesExpired(t *testing.T) {
	clock := newFakeClock()
	cache, _ := makeCache(t, 10, time.Second)
	cache.now = clock.Now

	require.True(t, cache.SetIfAbsent(1, User{"old"}))
	clock.Advance(2 * time.Second)
	require.True(t, cache.SetIfAbsent(1, User{"new"}))

	val, found := cache.Get(1)
	require.True(t, found)
	require.Equal(t, User{"new"}, val)
	require.Equal(t, 1, cache.Len())
}

func TestLRUCache_ConcurrentSetIfAbsent(t *testing.T) {
	cache, _ := makeCache(t, 10, time.Minute)

	const writers = 32
	var inserted [writers]bool
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			inserted[i] = cache.SetIfAbsent(1, User{Name: string(rune('a' + i))})
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	var winner User
	for i, ok := range inserted {
		if ok {
			winners++
			winner = User{Name: string(rune('a' + i))}
		}
	}
	require.Equal(t, 1, winners)
	val, found := cache.Get(1)
	require.True(t, found)
	require.Equal(t, winner, val)
}

func TestLRUCache_DeleteExpired(t *testing.T) {
	clock := newFakeClock()
	cache, metricsCollector := makeCache(t, 10, time.Second)
	cache.now = clock.Now

	cache.SetIfAbsent(1, User{"A"})
	cache.SetIfAbsent(2, User{"B"})
	clock.Advance(500 * time.Millisecond)
	cache.SetIfAbsent(3, User{"C"})
	clock.Advance(600 * time.Millisecond)

	require.Equal(t, 2, cache.DeleteExpired())
	require.Equal(t, 1, cache.Len())
	_, found := cache.Get(3)
	require.True(t, found)
	assertMetrics(t, testMetrics{Amount: 1, Expirations: 2}, metricsCollector)
}

func TestLRUCache_RunPeriodicCleanup(t *testing.T) {
	cache, err := NewWithOpts[int, User](10, nil, Options{DefaultTTL: 10 * time.Millisecond})
	require.NoError(t, err)
	cache.SetIfAbsent(1, User{"A"})
	cache.SetIfAbsent(2, User{"B"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cache.RunPeriodicCleanup(ctx, 20*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestLRUCache_Stats(t *testing.T) {
	cache, _ := makeCache(t, 10, 0)
	cache.SetIfAbsent(1, User{"A"})

	cache.RecordHit()
	cache.RecordHit()
	cache.RecordMiss()
	cache.RecordResponseTime(30 * time.Millisecond)
	cache.RecordResponseTime(60 * time.Millisecond)

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(3), stats.Requests)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 30*time.Millisecond, stats.AvgResponseTime())
}

func TestNewWithOpts(t *testing.T) {
	_, err := New[int, User](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")

	_, err = NewWithOpts[int, User](1, nil, Options{DefaultTTL: -time.Second})
	require.EqualError(t, err, "defaultTTL must be greater or equal to 0 (no expiration)")
}

func TestLRUCache_GetOrAdd(t *testing.T) {
	cache, _ := makeCache(t, 10, 0)

	calls := 0
	provider := func() User {
		calls++
		return User{"Bob"}
	}
	val, exists := cache.GetOrAdd(1, provider)
	require.False(t, exists)
	require.Equal(t, User{"Bob"}, val)

	val, exists = cache.GetOrAdd(1, provider)
	require.True(t, exists)
	require.Equal(t, User{"Bob"}, val)
	require.Equal(t, 1, calls)
}

func assertMetrics(t *testing.T, want testMetrics, mc *PrometheusMetrics) {
	t.Helper()
	assert.Equal(t, want.Amount, int(testutil.ToFloat64(mc.EntriesAmount)))
	assert.Equal(t, want.Hits, int(testutil.ToFloat64(mc.HitsTotal)))
	assert.Equal(t, want.Misses, int(testutil.ToFloat64(mc.MissesTotal)))
	assert.Equal(t, want.Evictions, int(testutil.ToFloat64(mc.EvictionsTotal)))
	assert.Equal(t, want.Expirations, int(testutil.ToFloat64(mc.ExpirationsTotal)))
}

func makeCache(t *testing.T, maxEntries int, ttl time.Duration) (*LRUCache[int, User], *PrometheusMetrics) {
	t.Helper()
	mc := NewPrometheusMetrics()
	cache, err := NewWithOpts[int, User](maxEntries, mc, Options{DefaultTTL: ttl})
	require.NoError(t, err)
	return cache, mc
}
