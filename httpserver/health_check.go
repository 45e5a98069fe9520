/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/restapi"
)

// StatusClientClosedRequest is the non-standard status (borrowed from nginx) for requests the client abandoned.
const StatusClientClosedRequest = 499

// HealthCheckComponentName names a checked dependency, e.g. the origin store.
type HealthCheckComponentName = string

// HealthCheckStatus is the state of a single component.
type HealthCheckStatus int

// Component states.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps components to their states.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheckContext checks the components of the service.
// An error means the check itself could not be performed.
type HealthCheckContext = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves /healthz: 200 when all components are healthy, 503 otherwise.
type HealthCheckHandler struct {
	check HealthCheckContext
}

// NewHealthCheckHandler creates a HealthCheckHandler. A nil check reports no components.
func NewHealthCheckHandler(check HealthCheckContext) *HealthCheckHandler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{check: check}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	result, err := h.check(r.Context())
	if err == nil {
		err = r.Context().Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		if logger != nil {
			logger.Error("health check failed", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	data := healthCheckResponseData{Components: make(map[string]bool, len(result))}
	for name, st := range result {
		data.Components[name] = st == HealthCheckStatusOK
		if st != HealthCheckStatusOK {
			status = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, status, data, logger)
}
