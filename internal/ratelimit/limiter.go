/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Rate is Count events per Duration.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter decides whether a request of the keyed client may proceed right now.
// A rejected request should be retried after retryAfter.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Alg is a rate limiting algorithm.
type Alg string

// Rate limiting algorithms.
const (
	AlgTokenBucket   Alg = "token_bucket"
	AlgLeakyBucket   Alg = "leaky_bucket"
	AlgSlidingWindow Alg = "sliding_window"
)

// ParseAlg parses the algorithm name. An empty string means AlgTokenBucket.
func ParseAlg(s string) (Alg, error) {
	switch alg := Alg(strings.ToLower(strings.TrimSpace(s))); alg {
	case "":
		return AlgTokenBucket, nil
	case AlgTokenBucket, AlgLeakyBucket, AlgSlidingWindow:
		return alg, nil
	default:
		return "", fmt.Errorf("unknown rate limiting algorithm %q", s)
	}
}

// Params describes a per-key rate limit.
type Params struct {
	Alg Alg
	// Long is the sustained-rate window.
	// Leaky bucket and sliding window limiters use only its refill rate.
	Long TokenBucketParams
	// Short is the burst window.
	// Leaky bucket limiter uses its capacity as the maximum burst.
	Short   TokenBucketParams
	MaxKeys int
}

// New creates a Limiter for the given parameters.
func New(params Params) (Limiter, error) {
	if params.Long == (TokenBucketParams{}) {
		params.Long = DefaultLongWindow
	}
	if params.Short == (TokenBucketParams{}) {
		params.Short = DefaultShortWindow
	}
	if params.MaxKeys == 0 {
		params.MaxKeys = DefaultMaxKeys
	}
	switch params.Alg {
	case AlgTokenBucket, "":
		return NewDualTokenBucketLimiter(DualTokenBucketOpts{Long: params.Long, Short: params.Short, MaxKeys: params.MaxKeys})
	case AlgLeakyBucket:
		return NewLeakyBucketLimiter(params.Long.Refill, params.Short.Capacity, params.MaxKeys)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(params.Long.Refill, params.MaxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limiting algorithm %q", params.Alg)
	}
}
