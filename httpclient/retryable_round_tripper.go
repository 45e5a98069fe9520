/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/retry"
)

// RetryAttemptNumberHeader is an HTTP header name that contains the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// maxRetryAfter caps the delay requested by the upstream in the Retry-After header.
const maxRetryAfter = 30 * time.Second

// CheckRetryFunc is called right after each attempt and determines if the next retry attempt is needed.
type CheckRetryFunc func(req *http.Request, resp *http.Response, roundTripErr error) (bool, error)

// RetryableRoundTripper wraps http.RoundTripper and retries failed requests.
type RetryableRoundTripper struct {
	Delegate http.RoundTripper

	// MaxRetryAttempts determines how many retry attempts can be done.
	// The total number of requests may be MaxRetryAttempts + 1.
	MaxRetryAttempts int

	CheckRetry CheckRetryFunc

	// BackoffPolicy computes the delay before the next attempt
	// when the response has no Retry-After header.
	BackoffPolicy retry.Policy

	Logger log.FieldLogger
}

// RetryableRoundTripperOpts represents options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	// MaxRetryAttempts is DefaultMaxRetryAttempts if zero.
	MaxRetryAttempts int
	// CheckRetry is DefaultCheckRetry if nil.
	CheckRetry CheckRetryFunc
	// BackoffPolicy is an exponential backoff with default parameters if nil.
	BackoffPolicy retry.Policy
	Logger        log.FieldLogger
}

// NewRetryableRoundTripperWithOpts creates a new RetryableRoundTripper.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 {
		return nil, fmt.Errorf("max retry attempts must be >= 0")
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.CheckRetry == nil {
		opts.CheckRetry = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = retry.NewExponentialBackoffPolicy(DefaultRetryInitialInterval, 0)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &RetryableRoundTripper{
		Delegate:         delegate,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetry,
		BackoffPolicy:    opts.BackoffPolicy,
		Logger:           opts.Logger,
	}, nil
}

// RoundTrip sends the request and retries it while CheckRetry allows and attempts are not exhausted.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody {
		originalBody := req.Body
		defer func() { _ = originalBody.Close() }() // Per RoundTripper contract.
	}
	rewindReqBody, err := prepareBodyForRetries(req)
	if err != nil {
		return nil, &RetryableRoundTripperError{Inner: err}
	}

	ctx := req.Context()
	logger := loggerFromContext(ctx, rt.Logger)
	bf := rt.BackoffPolicy.NewBackOff()
	reqCloned := false

	var resp *http.Response
	var roundTripErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewindReqBody(req); err != nil {
				logger.Error("failed to rewind request body", log.Error(err), log.Int("attempts", attempt))
				return resp, roundTripErr
			}
			if resp != nil {
				discardBody(resp, logger)
			}
			if !reqCloned {
				req, reqCloned = req.Clone(ctx), true // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, roundTripErr = rt.Delegate.RoundTrip(req)

		needRetry, checkErr := rt.CheckRetry(req, resp, roundTripErr)
		if checkErr != nil {
			logger.Error("failed to check if retry is needed", log.Error(checkErr), log.Int("attempts", attempt+1))
			return resp, roundTripErr
		}
		if !needRetry {
			return resp, roundTripErr
		}
		if attempt >= rt.MaxRetryAttempts {
			logger.Warn("max retry attempts exceeded",
				log.Int("max_retry_attempts", rt.MaxRetryAttempts), log.Int("attempts", attempt+1))
			return resp, roundTripErr
		}

		waitTime, ok := retryAfterFromResponse(resp)
		if !ok {
			if waitTime = bf.NextBackOff(); waitTime == backoff.Stop {
				return resp, roundTripErr
			}
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn("context is done while waiting for the next retry attempt",
				log.Error(ctx.Err()), log.Int("attempts", attempt+1))
			return resp, roundTripErr
		case <-timer.C:
		}
	}
}

// RetryableRoundTripperError is returned when the request cannot be prepared for retries.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries temporary network errors and, for idempotent requests,
// 429 and 5xx responses (except 501 Not Implemented).
// GET, HEAD and OPTIONS are idempotent; others are idempotent only with NewContextWithIdempotentHint.
func DefaultCheckRetry(req *http.Request, resp *http.Response, roundTripErr error) (bool, error) {
	if roundTripErr != nil {
		if errors.Is(roundTripErr, context.Canceled) || errors.Is(roundTripErr, context.DeadlineExceeded) {
			return false, nil
		}
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	if !isIdempotent(req) {
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented), nil
}

// CheckErrorIsTemporary reports whether the error is worth retrying:
// an unexpected EOF, a refused or reset connection or a network timeout.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isIdempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return GetIdempotentHintFromContext(req.Context())
}

func retryAfterFromResponse(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	val := resp.Header.Get("Retry-After")
	if val == "" {
		return 0, false
	}
	var retryAfter time.Duration
	if secs, err := strconv.Atoi(val); err == nil {
		if secs < 0 {
			return 0, false
		}
		retryAfter = time.Duration(secs) * time.Second
	} else {
		t, parseErr := http.ParseTime(val)
		if parseErr != nil {
			return 0, false
		}
		retryAfter = time.Until(t)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}
	if retryAfter > maxRetryAfter {
		retryAfter = maxRetryAfter
	}
	return retryAfter, true
}
