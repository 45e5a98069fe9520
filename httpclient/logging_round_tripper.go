/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log"
)

// LoggingMode defines which outgoing requests are logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// LoggingRoundTripper logs outgoing requests.
// A request is logged in "all" mode, or in "failed" mode if it has failed (transport error or status >= 400).
// Slow requests are logged with the warn level in both modes.
type LoggingRoundTripper struct {
	Delegate             http.RoundTripper
	RequestType          string
	Mode                 LoggingMode
	SlowRequestThreshold time.Duration
	Logger               log.FieldLogger
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	RequestType          string
	Mode                 LoggingMode
	SlowRequestThreshold time.Duration

	// Logger is used when there is no logger in the request context (see middleware.GetLoggerFromContext).
	Logger log.FieldLogger
}

// NewLoggingRoundTripperWithOpts creates a new LoggingRoundTripper.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, opts LoggingRoundTripperOpts) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeFailed
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &LoggingRoundTripper{
		Delegate:             delegate,
		RequestType:          opts.RequestType,
		Mode:                 opts.Mode,
		SlowRequestThreshold: opts.SlowRequestThreshold,
		Logger:               opts.Logger,
	}
}

// RoundTrip sends the request and logs it according to the mode.
// If the request is made within an incoming HTTP request, its duration is added to the time slots of the incoming request log.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	reqType := requestType(ctx, rt.RequestType)
	startTime := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(startTime)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs("upstream_"+reqType+"_ms", elapsed)
	}

	failed := err != nil || resp.StatusCode >= http.StatusBadRequest
	slow := rt.SlowRequestThreshold > 0 && elapsed >= rt.SlowRequestThreshold
	if rt.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.URL.String()),
		log.String("request_type", reqType),
		log.DurationIn(elapsed, time.Millisecond),
	}
	logger := loggerFromContext(ctx, rt.Logger)
	switch {
	case err != nil:
		logger.Error("upstream request failed", append(fields, log.Error(err))...)
	case slow:
		logger.Warn("slow upstream request", append(fields, log.Int("status", resp.StatusCode))...)
	default:
		logger.Info("upstream request done", append(fields, log.Int("status", resp.StatusCode))...)
	}
	return resp, err
}

func loggerFromContext(ctx context.Context, defaultLogger log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return defaultLogger
}
