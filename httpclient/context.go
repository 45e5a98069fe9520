/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithRequestType overrides Opts.RequestType for requests sent with the returned context.
// The request type labels log entries and metrics (e.g. "get_user").
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext returns the request type set by NewContextWithRequestType or an empty string.
func GetRequestTypeFromContext(ctx context.Context) string {
	reqType, _ := ctx.Value(ctxKeyRequestType).(string)
	return reqType
}

// NewContextWithIdempotentHint marks requests sent with the returned context as safe to repeat.
// Without the hint only GET, HEAD and OPTIONS requests are retried after a server error.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext reports whether the context carries a positive idempotency hint.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	hint, _ := ctx.Value(ctxKeyIdempotentHint).(bool)
	return hint
}

func requestType(ctx context.Context, fallback string) string {
	if reqType := GetRequestTypeFromContext(ctx); reqType != "" {
		return reqType
	}
	return fallback
}
