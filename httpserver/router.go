/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/restapi"
)

// Paths of the system endpoints. They are not observed by the request metrics.
const (
	MetricsPath     = "/metrics"
	HealthCheckPath = "/healthz"
)

// NewRouter builds the chi router of the server: built-in middlewares,
// the system endpoints, and the routes from opts.APIRoutes.
// Unknown paths and methods get restapi error bodies of opts.ErrorDomain.
func NewRouter( //nolint:gocritic // hugeParam: opts is passed once
	cfg *Config, logger log.FieldLogger, opts Opts, reqMetrics *middleware.HTTPRequestPrometheusMetrics,
) chi.Router {
	router := chi.NewRouter()
	router.Use(builtinMiddlewares(cfg, logger, opts, reqMetrics)...)
	router.Use(opts.RootMiddlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, MetricsPath, metricsHandler)
	router.Method(http.MethodGet, HealthCheckPath, NewHealthCheckHandler(opts.HealthCheck))
	for _, route := range opts.APIRoutes {
		route(router)
	}

	respondErr := func(status int, code, message string) http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			restapi.RespondError(rw, status, restapi.NewError(opts.ErrorDomain, code, message),
				middleware.GetLoggerFromContext(r.Context()))
		}
	}
	router.NotFound(respondErr(http.StatusNotFound, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound))
	router.MethodNotAllowed(respondErr(
		http.StatusMethodNotAllowed, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed))
	return router
}

// builtinMiddlewares returns the middlewares in the order they wrap the request.
// The client key is resolved before logging so that it appears in the request entry.
func builtinMiddlewares( //nolint:gocritic // hugeParam: opts is passed once
	cfg *Config, logger log.FieldLogger, opts Opts, reqMetrics *middleware.HTTPRequestPrometheusMetrics,
) []func(http.Handler) http.Handler {
	getClientKey := opts.GetClientKey
	if getClientKey == nil {
		getClientKey = middleware.GetClientIP
	}
	getRoutePattern := opts.HTTPRequestMetrics.GetRoutePattern
	if getRoutePattern == nil {
		getRoutePattern = GetChiRoutePattern
	}

	mws := []func(http.Handler) http.Handler{
		markStartTime,
		middleware.RequestID(),
		middleware.ClientKeyWithGetter(getClientKey),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
			RequestStart:         cfg.Log.RequestStart,
			RequestHeaders:       cfg.Log.RequestHeaders,
			ExcludedEndpoints:    cfg.Log.ExcludedEndpoints,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		}),
		middleware.Recovery(opts.ErrorDomain),
		middleware.HTTPRequestMetricsWithOpts(reqMetrics, getRoutePattern, middleware.HTTPRequestMetricsOpts{
			GetUserAgentType:  opts.HTTPRequestMetrics.GetUserAgentType,
			ExcludedEndpoints: []string{MetricsPath, HealthCheckPath},
		}),
	}
	if cfg.Limits.MaxBodySizeBytes > 0 {
		mws = append(mws, middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySizeBytes), opts.ErrorDomain))
	}
	return mws
}

func markStartTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
	})
}

// GetChiRoutePattern returns the chi route pattern of the request, e.g. "/users/{id}".
// Before routing has completed the pattern is resolved by matching the request against the routes.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	path := r.URL.RawPath
	if path == "" {
		path = r.URL.Path
	}
	matched := chi.NewRouteContext()
	if !rctx.Routes.Match(matched, r.Method, path) {
		return ""
	}
	return matched.RoutePattern()
}
