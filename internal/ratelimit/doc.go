/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-key rate limiting that admits or rejects a request immediately,
// without queuing it and without doing any work on behalf of a rejected request.
//
// The default algorithm is a dual token bucket (see DualTokenBucketLimiter): every key owns
// a long-window bucket that bounds the sustained rate and a short-window bucket that bounds bursts,
// and a request is admitted only when both of them hold a token.
// Leaky bucket (GCRA) and sliding window algorithms are available as alternatives.
// All of them implement the Limiter interface.
package ratelimit
