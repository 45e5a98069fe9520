/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/acronis/go-resolvekit/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
	ctxKeyClientKey
)

// valueFromContext returns the zero value of T if the key is absent.
func valueFromContext[T any](ctx context.Context, key ctxKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// NewContextWithRequestID returns a copy of ctx carrying the external request id (X-Request-ID).
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the external request id or an empty string.
func GetRequestIDFromContext(ctx context.Context) string {
	return valueFromContext[string](ctx, ctxKeyRequestID)
}

// NewContextWithInternalRequestID returns a copy of ctx carrying the internal request id (X-Int-Request-ID).
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return context.WithValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

// GetInternalRequestIDFromContext returns the internal request id or an empty string.
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return valueFromContext[string](ctx, ctxKeyInternalRequestID)
}

// NewContextWithLogger returns a copy of ctx carrying the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return valueFromContext[log.FieldLogger](ctx, ctxKeyLogger)
}

// NewContextWithLoggingParams returns a copy of ctx carrying the LoggingParams of the request.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return context.WithValue(ctx, ctxKeyLoggingParams, loggingParams)
}

// GetLoggingParamsFromContext returns the LoggingParams of the request or nil.
func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return valueFromContext[*LoggingParams](ctx, ctxKeyLoggingParams)
}

// NewContextWithRequestStartTime returns a copy of ctx carrying the time the request was received.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestStartTime, startTime)
}

// GetRequestStartTimeFromContext returns the time the request was received or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return valueFromContext[time.Time](ctx, ctxKeyRequestStartTime)
}

// NewContextWithClientKey returns a copy of ctx carrying the key the rate limiter uses for the client.
func NewContextWithClientKey(ctx context.Context, clientKey string) context.Context {
	return context.WithValue(ctx, ctxKeyClientKey, clientKey)
}

// GetClientKeyFromContext returns the client key or an empty string.
func GetClientKeyFromContext(ctx context.Context) string {
	return valueFromContext[string](ctx, ctxKeyClientKey)
}
