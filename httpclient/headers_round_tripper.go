/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
)

// RequestIDHeader carries the id of the incoming request to the upstream service.
const RequestIDHeader = "X-Request-ID"

// headersRoundTripper decorates outgoing requests with the client's User-Agent
// and the id of the incoming request found in the context (see middleware.RequestID).
// A User-Agent set by the caller is kept and the client's one is appended to it.
type headersRoundTripper struct {
	delegate  http.RoundTripper
	userAgent string
}

func (rt *headersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	userAgent := rt.userAgent
	if callerUA := req.Header.Get("User-Agent"); callerUA != "" {
		userAgent = callerUA + " " + userAgent
	}
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = middleware.GetRequestIDFromContext(req.Context())
	}

	// The request must not be modified by a RoundTripper.
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	return rt.delegate.RoundTrip(req)
}
