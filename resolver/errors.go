/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-resolvekit/fetchpool"
)

// ErrInvalidInput is returned when the requested identifier is malformed.
var ErrInvalidInput = errors.New("invalid input")

// ErrRateLimited is returned when the client has exceeded its rate limit.
// The actual error is *RateLimitedError which carries the retry-after hint.
var ErrRateLimited = errors.New("rate limited")

// ErrNotFound is returned when the origin has no entity with the requested identifier.
var ErrNotFound = fetchpool.ErrNotFound

// ErrFetch is matched (with errors.Is) by errors of failed origin fetches.
var ErrFetch = fetchpool.ErrFetch

// RateLimitedError is returned when the client key is not admitted by the rate limiter.
type RateLimitedError struct {
	ClientKey  string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows matching RateLimitedError with ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
