/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// RequestIDOpts configures the id generators of the RequestID middleware.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

// RequestID is a middleware that tags every request with two ids.
// The external id is taken from the X-Request-ID header or generated when the header is empty.
// The internal id is always generated. Both are stored in the request context
// and echoed in the X-Request-ID and X-Int-Request-ID response headers.
// Ids are generated with xid.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is RequestID with custom id generators. Nil generators fall back to xid.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	genID := orXID(opts.GenerateID)
	genInternalID := orXID(opts.GenerateInternalID)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			extID := r.Header.Get(headerRequestID)
			if extID == "" {
				extID = genID()
			}
			intID := genInternalID()

			rw.Header().Set(headerRequestID, extID)
			rw.Header().Set(headerInternalRequestID, intID)
			ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), extID), intID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func orXID(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	return func() string { return xid.New().String() }
}
