/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// throttlingRoundTripper delays outgoing requests so that the upstream sees at most
// cfg.Limit requests per second. A request that cannot get a token within
// cfg.WaitTimeout fails with *RateLimitingWaitError.
type throttlingRoundTripper struct {
	delegate    http.RoundTripper
	tokens      *rate.Limiter
	waitTimeout time.Duration
}

func newThrottlingRoundTripper(delegate http.RoundTripper, cfg RateLimitsConfig) (*throttlingRoundTripper, error) {
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.Limit)
	}
	burst := cfg.Burst
	switch {
	case burst < 0:
		return nil, fmt.Errorf("burst must not be negative, got %d", burst)
	case burst == 0:
		burst = DefaultRateLimitingBurst
	}
	waitTimeout := time.Duration(cfg.WaitTimeout)
	if waitTimeout == 0 {
		waitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &throttlingRoundTripper{
		delegate:    delegate,
		tokens:      rate.NewLimiter(rate.Limit(cfg.Limit), burst),
		waitTimeout: waitTimeout,
	}, nil
}

func (rt *throttlingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.waitForToken(req.Context()); err != nil {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
		return nil, err
	}
	return rt.delegate.RoundTrip(req)
}

func (rt *throttlingRoundTripper) waitForToken(reqCtx context.Context) error {
	waitCtx, cancel := context.WithTimeout(reqCtx, rt.waitTimeout)
	defer cancel()
	err := rt.tokens.Wait(waitCtx)
	switch {
	case err == nil:
		return nil
	case reqCtx.Err() != nil:
		return reqCtx.Err()
	default:
		return &RateLimitingWaitError{Inner: err}
	}
}

// RateLimitingWaitError means that the request was not sent because
// the client-side rate limit did not let it through in time.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return "client-side rate limiting: " + e.Inner.Error()
}

func (e *RateLimitingWaitError) Unwrap() error { return e.Inner }
