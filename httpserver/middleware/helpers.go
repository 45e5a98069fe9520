/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
)

// RoutePatternGetterFunc returns the route pattern (e.g. "/users/{id}") matched by the request.
// It depends on the router used by the server. The result is used as a metric label, so it must be bounded.
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriterIfNeeded wraps rw unless it is already a WrapResponseWriter.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return NewWrapResponseWriter(rw, protoMajor)
}

// statusOrOK returns 200 for a handler that has not written anything.
func statusOrOK(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}
