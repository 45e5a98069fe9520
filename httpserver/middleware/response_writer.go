/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// WrapResponseWriter is a proxy around an http.ResponseWriter that allows to hook into various parts of the response process.
// It's used by the Logging and HTTPRequestMetrics middlewares to get the status code and the number of written bytes.
type WrapResponseWriter = chimw.WrapResponseWriter

// NewWrapResponseWriter wraps an http.ResponseWriter, returning a proxy that allows to hook into various parts of the response process.
func NewWrapResponseWriter(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}
