/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-resolvekit/log"
)

// DefaultSlowRequestThreshold is the duration after which the "time_slots" field is added to the response entry.
const DefaultSlowRequestThreshold = time.Second

// LoggingOpts configures the Logging middleware.
type LoggingOpts struct {
	// RequestStart enables the "request started" entry.
	RequestStart bool
	// RequestHeaders are logged as "req_header_<name>" fields (lowercased, dashes replaced by underscores).
	RequestHeaders []string
	// ExcludedEndpoints are logged only when the response status is >= 400.
	ExcludedEndpoints []string
	// SlowRequestThreshold enables the "time_slots" field for slow requests.
	SlowRequestThreshold time.Duration
}

// Logging is a middleware that writes one entry per completed request
// and puts a logger carrying the request ids into the request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a configurable version of Logging.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	headerKeys := make(map[string]string, len(opts.RequestHeaders))
	for _, name := range opts.RequestHeaders {
		headerKeys[name] = "req_header_" + strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startTime := GetRequestStartTimeFromContext(ctx)
			if startTime.IsZero() {
				startTime = time.Now()
				ctx = NewContextWithRequestStartTime(ctx, startTime)
			}

			ctxLogger := logger.With(
				log.String("request_id", GetRequestIDFromContext(ctx)),
				log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
			)
			reqLogger := ctxLogger.With(requestFields(r, headerKeys)...)
			excluded := slices.Contains(opts.ExcludedEndpoints, r.URL.Path)
			if opts.RequestStart && !excluded {
				reqLogger.Info("request started")
			}

			lp := &LoggingParams{}
			ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, ctxLogger), lp)
			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(ctx))

			status := statusOrOK(wrw)
			if excluded && status < http.StatusBadRequest {
				return
			}
			elapsed := time.Since(startTime)
			fields := append([]log.Field{
				log.Int64("duration_ms", elapsed.Milliseconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
			}, lp.snapshot(elapsed >= opts.SlowRequestThreshold)...)
			reqLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()), fields...)
		})
	}
}

func requestFields(r *http.Request, headerKeys map[string]string) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if host, port, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		fields = append(fields, log.String("remote_addr_ip", host))
		if p, pErr := strconv.ParseUint(port, 10, 16); pErr == nil {
			fields = append(fields, log.Uint16("remote_addr_port", uint16(p)))
		}
	}
	if clientKey := GetClientKeyFromContext(r.Context()); clientKey != "" {
		fields = append(fields, log.String("client_key", clientKey))
	}
	for name, key := range headerKeys {
		fields = append(fields, log.String(key, r.Header.Get(name)))
	}
	return fields
}
