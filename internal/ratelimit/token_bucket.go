/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxKeys is the default number of tracked keys after which idle keys are evicted.
const DefaultMaxKeys = 5000

// TokenBucketParams describes a single token bucket.
type TokenBucketParams struct {
	// Capacity is the maximum number of tokens in the bucket. The bucket starts full.
	Capacity int
	// Refill is the number of tokens added to the bucket per duration.
	Refill Rate
}

// Default windows: up to 10 requests per minute with a burst of at most 5 requests per 10 seconds.
var (
	DefaultLongWindow  = TokenBucketParams{Capacity: 10, Refill: Rate{Count: 10, Duration: time.Minute}}
	DefaultShortWindow = TokenBucketParams{Capacity: 5, Refill: Rate{Count: 5, Duration: 10 * time.Second}}
)

func (p TokenBucketParams) validate() error {
	if p.Capacity <= 0 {
		return fmt.Errorf("capacity must be greater than 0, got %d", p.Capacity)
	}
	if p.Refill.Count <= 0 || p.Refill.Duration <= 0 {
		return fmt.Errorf("refill rate must be positive, got %d per %s", p.Refill.Count, p.Refill.Duration)
	}
	return nil
}

func (p TokenBucketParams) limit() rate.Limit {
	return rate.Limit(float64(p.Refill.Count) / p.Refill.Duration.Seconds())
}

// BucketState is a snapshot of a single token bucket.
type BucketState struct {
	Capacity        float64
	Tokens          float64
	RefillRatePerMs float64
	LastRefill      time.Time
}

// DualTokenBucketOpts represents options for DualTokenBucketLimiter.
type DualTokenBucketOpts struct {
	// Long is the sustained-rate window. DefaultLongWindow is used if it's zero.
	Long TokenBucketParams
	// Short is the burst window. DefaultShortWindow is used if it's zero.
	Short TokenBucketParams
	// MaxKeys is the number of tracked keys after which idle keys are evicted. DefaultMaxKeys is used if it's 0.
	MaxKeys int
}

type bucketPair struct {
	long       *rate.Limiter
	short      *rate.Limiter
	lastRefill time.Time
}

// DualTokenBucketLimiter admits a request only if both the long (sustained) and the short (burst) token buckets
// of the key hold at least one token, and then takes one token from each of them.
// Buckets are refilled lazily on every call, no timers are used.
type DualTokenBucketLimiter struct {
	long    TokenBucketParams
	short   TokenBucketParams
	maxKeys int

	mu      sync.Mutex
	buckets map[string]*bucketPair

	now func() time.Time
}

var _ Limiter = (*DualTokenBucketLimiter)(nil)

// NewDualTokenBucketLimiter creates a new DualTokenBucketLimiter.
func NewDualTokenBucketLimiter(opts DualTokenBucketOpts) (*DualTokenBucketLimiter, error) {
	if opts.Long == (TokenBucketParams{}) {
		opts.Long = DefaultLongWindow
	}
	if opts.Short == (TokenBucketParams{}) {
		opts.Short = DefaultShortWindow
	}
	if err := opts.Long.validate(); err != nil {
		return nil, fmt.Errorf("long window: %w", err)
	}
	if err := opts.Short.validate(); err != nil {
		return nil, fmt.Errorf("short window: %w", err)
	}
	if opts.MaxKeys < 0 {
		return nil, fmt.Errorf("max keys should not be negative, got %d", opts.MaxKeys)
	}
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	return &DualTokenBucketLimiter{
		long:    opts.Long,
		short:   opts.Short,
		maxKeys: opts.MaxKeys,
		buckets: make(map[string]*bucketPair),
		now:     time.Now,
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// If it is not, retryAfter is the time after which both buckets will hold a token again.
func (l *DualTokenBucketLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	allow, retryAfter = l.admit(key)
	return allow, retryAfter, nil
}

// Admit reports whether the request with the given key is admitted.
func (l *DualTokenBucketLimiter) Admit(key string) bool {
	allow, _ := l.admit(key)
	return allow
}

// Buckets returns snapshots of the long and short buckets of the key.
func (l *DualTokenBucketLimiter) Buckets(key string) (long, short BucketState, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bp, ok := l.buckets[key]
	if !ok {
		return BucketState{}, BucketState{}, false
	}
	now := l.now()
	return makeBucketState(l.long, bp.long, now, bp.lastRefill), makeBucketState(l.short, bp.short, now, bp.lastRefill), true
}

// Len returns the number of tracked keys.
func (l *DualTokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *DualTokenBucketLimiter) admit(key string) (allow bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Read under l.mu: buckets must observe non-decreasing time.
	now := l.now()

	bp, ok := l.buckets[key]
	if !ok {
		bp = &bucketPair{
			long:  rate.NewLimiter(l.long.limit(), l.long.Capacity),
			short: rate.NewLimiter(l.short.limit(), l.short.Capacity),
		}
		l.buckets[key] = bp
	}
	bp.lastRefill = now

	longTokens, shortTokens := bp.long.TokensAt(now), bp.short.TokensAt(now)
	if longTokens >= 1 && shortTokens >= 1 {
		bp.long.AllowN(now, 1)
		bp.short.AllowN(now, 1)
		allow = true
	} else {
		retryAfter = maxDuration(timeToToken(bp.long, longTokens), timeToToken(bp.short, shortTokens))
	}

	if len(l.buckets) > l.maxKeys {
		l.evictIdleLocked(now)
	}
	return allow, retryAfter
}

// evictIdleLocked removes keys whose buckets are both full, i.e. keys without recent activity.
// Keys with partially consumed buckets are kept since they represent recent traffic.
func (l *DualTokenBucketLimiter) evictIdleLocked(now time.Time) {
	for key, bp := range l.buckets {
		if bp.long.TokensAt(now) >= float64(l.long.Capacity) && bp.short.TokensAt(now) >= float64(l.short.Capacity) {
			delete(l.buckets, key)
		}
	}
}

func makeBucketState(params TokenBucketParams, lim *rate.Limiter, now, lastRefill time.Time) BucketState {
	return BucketState{
		Capacity:        float64(params.Capacity),
		Tokens:          math.Min(lim.TokensAt(now), float64(params.Capacity)),
		RefillRatePerMs: float64(lim.Limit()) / 1000,
		LastRefill:      lastRefill,
	}
}

func timeToToken(lim *rate.Limiter, tokens float64) time.Duration {
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(lim.Limit()) * float64(time.Second))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
