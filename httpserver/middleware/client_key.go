/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net"
	"net/http"
	"strings"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// ClientKeyGetterFunc is a function for getting the key which identifies the client of the request.
type ClientKeyGetterFunc func(r *http.Request) string

type clientKeyHandler struct {
	next         http.Handler
	getClientKey ClientKeyGetterFunc
}

// ClientKey is a middleware that determines the key of the client that sent the request and puts it into the request's context.
// The key is the first hop of X-Forwarded-For header, or X-Real-IP header, or the host part of the remote address.
func ClientKey() func(next http.Handler) http.Handler {
	return ClientKeyWithGetter(GetClientIP)
}

// ClientKeyWithGetter is a more configurable version of ClientKey middleware.
func ClientKeyWithGetter(getClientKey ClientKeyGetterFunc) func(next http.Handler) http.Handler {
	if getClientKey == nil {
		panic("function for getting client key cannot be nil")
	}
	return func(next http.Handler) http.Handler {
		return &clientKeyHandler{next: next, getClientKey: getClientKey}
	}
}

func (h *clientKeyHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	r = r.WithContext(NewContextWithClientKey(r.Context(), h.getClientKey(r)))
	h.next.ServeHTTP(rw, r)
}

// GetClientIP returns the IP address of the client.
// Proxy headers take precedence over the remote address of the connection.
func GetClientIP(r *http.Request) string {
	if originAddr := getOriginAddr(r); originAddr != "" {
		return originAddr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getOriginAddr(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		if first := strings.IndexByte(forwardFor, ','); first != -1 {
			forwardFor = forwardFor[:first]
		}
		if addr := strings.TrimSpace(forwardFor); addr != "" {
			return addr
		}
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}
