/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/go-resolvekit/restapi"
)

// RequestBodyLimit is a middleware that caps the request body at maxSizeBytes.
// Requests declaring a larger Content-Length are rejected with 413 before the handler runs.
// Otherwise the body is wrapped, and reading past the limit fails with *restapi.RequestBodyTooLargeError.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && uint64(r.ContentLength) > maxSizeBytes {
				restapi.RespondMalformedRequestError(rw, errDomain,
					restapi.NewTooLargeMalformedRequestError(maxSizeBytes), GetLoggerFromContext(r.Context()))
				return
			}
			restapi.SetRequestMaxBodySize(rw, r, maxSizeBytes)
			next.ServeHTTP(rw, r)
		})
	}
}
