/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter admits requests at a steady rate with a bounded burst.
// It is backed by the GCRA implementation from throttled, see https://brandur.org/rate-limiting#gcra.
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketLimiter creates a limiter that leaks rate.Count requests per rate.Duration
// and tolerates up to maxBurst requests above that rate. At most maxKeys buckets are tracked.
func NewLeakyBucketLimiter(rate Rate, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	if rate.Count <= 0 || rate.Duration <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d per %s", rate.Count, rate.Duration)
	}
	if maxBurst < 0 {
		return nil, fmt.Errorf("max burst must be >= 0, got %d", maxBurst)
	}
	store, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create bucket store: %w", err)
	}
	quota := throttled.RateQuota{MaxRate: throttled.PerDuration(rate.Count, rate.Duration), MaxBurst: maxBurst}
	gcra, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("create GCRA limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcra: gcra}, nil
}

// Allow reports whether one more request for the key fits into its bucket.
// For a rejected request retryAfter is the time until the bucket has room again.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := l.gcra.RateLimitCtx(ctx, key, 1)
	switch {
	case err != nil:
		return false, 0, fmt.Errorf("leaky bucket for %q: %w", key, err)
	case limited:
		return false, res.RetryAfter, nil
	default:
		return true, 0, nil
	}
}
