/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/restapi"
)

// RecoveryDefaultStackSize is the number of stack bytes logged for a recovered panic.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts configures the Recovery middleware. Zero StackSize disables stack logging.
type RecoveryOpts struct {
	StackSize int
}

// Recovery is a middleware that turns a panic in the handler into a 500 response with an error body of errDomain.
// http.ErrAbortHandler is re-panicked so that net/http can abort the connection.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is Recovery with a configurable stack size.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				logger := GetLoggerFromContext(r.Context())
				if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					if logger != nil {
						logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
					}
					panic(p)
				}
				if logger != nil {
					logger.Error(fmt.Sprintf("Panic: %+v", p), stackFields(opts.StackSize)...)
				}
				restapi.RespondError(rw, http.StatusInternalServerError, restapi.NewInternalError(errDomain), logger)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func stackFields(size int) []log.Field {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	return []log.Field{log.Bytes("stack", buf[:runtime.Stack(buf, false)])}
}
