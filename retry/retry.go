/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations with retries driven by backoff policies.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy produces a fresh backoff for each retried operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func() backoff.BackOff

func (f PolicyFunc) NewBackOff() backoff.BackOff { return f() }

// IsRetryable tells transient errors from permanent ones.
type IsRetryable func(error) bool

// RetryableFunc is an operation that may be retried.
type RetryableFunc func(ctx context.Context) error

// DoWithRetry calls fn until it succeeds, the policy gives up, ctx is done, or fn returns a non-retryable error.
// A nil isRetryable retries any error. A nil notify is allowed; otherwise it's called before each retry.
// The last error of fn is returned.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, notify)
}

// ExponentialBackoffPolicy delays retries exponentially (the default 1.5 multiplier with jitter).
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	// MaxRetries limits the number of retries (not counting the first attempt). Zero means no limit.
	MaxRetries int
}

// NewExponentialBackoffPolicy creates an ExponentialBackoffPolicy.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetries int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, MaxRetries: maxRetries}
}

func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	return limitRetries(eb, p.MaxRetries)
}

// ConstantBackoffPolicy delays retries by the same interval.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewConstantBackoffPolicy creates a ConstantBackoffPolicy.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return limitRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}

func limitRetries(b backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxRetries))
	}
	b.Reset()
	return b
}
