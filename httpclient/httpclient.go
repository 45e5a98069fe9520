/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-resolvekit/internal/libinfo"
	"github.com/acronis/go-resolvekit/log"
)

// DefaultRequestType is used in logs and metrics when request type is not specified.
const DefaultRequestType = "unknown"

// Opts represents options for New.
type Opts struct {
	// UserAgent is appended to the User-Agent header of outgoing requests. libinfo.UserAgent() is used if it's empty.
	UserAgent string

	// RequestType is used in logs and metrics (e.g. name of the upstream service).
	// It may be overridden per request with NewContextWithRequestType.
	RequestType string

	// Delegate is the innermost round tripper. A clone of http.DefaultTransport is used if it's nil.
	Delegate http.RoundTripper

	// Logger is used when the request context has no logger.
	Logger log.FieldLogger

	// Metrics is used to collect Prometheus metrics. Metrics are disabled if it's nil.
	Metrics *PrometheusMetrics
}

// New creates a new HTTP client. The transport chain (from the outermost) is:
// retries, request id, user agent, rate limiting, metrics, logging.
// Every retry attempt is rate limited, measured and logged separately.
func New(cfg *Config, opts Opts) (*http.Client, error) {
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	if opts.UserAgent == "" {
		opts.UserAgent = libinfo.UserAgent()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	delegate = NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{
		RequestType:          opts.RequestType,
		Mode:                 cfg.Log.Mode,
		SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		Logger:               opts.Logger,
	})

	if opts.Metrics != nil {
		delegate = NewMetricsRoundTripper(delegate, opts.RequestType, opts.Metrics)
	}

	if cfg.RateLimits.Enabled {
		throttlingRT, err := newThrottlingRoundTripper(delegate, cfg.RateLimits)
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
		delegate = throttlingRT
	}

	delegate = &headersRoundTripper{delegate: delegate, userAgent: opts.UserAgent}

	if cfg.Retries.Enabled {
		retryableRT, err := NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{
			MaxRetryAttempts: cfg.Retries.MaxAttempts,
			BackoffPolicy:    cfg.Retries.Policy.BackoffPolicy(),
			Logger:           opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
		delegate = retryableRT
	}

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}

// Must creates a new HTTP client and panics if any error occurs.
func Must(cfg *Config, opts Opts) *http.Client {
	client, err := New(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
