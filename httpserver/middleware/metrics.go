/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelMethod        = "method"
	labelRoutePattern  = "route_pattern"
	labelUserAgentType = "user_agent_type"
	labelStatusCode    = "status_code"
)

const (
	userAgentTypeBrowser    = "browser"
	userAgentTypeHTTPClient = "http-client"
)

// DefaultHTTPRequestDurationBuckets are the histogram buckets (in seconds) for served requests.
var DefaultHTTPRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestPrometheusMetricsOpts configures HTTPRequestPrometheusMetrics.
type HTTPRequestPrometheusMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestPrometheusMetrics holds the metrics of incoming HTTP requests.
type HTTPRequestPrometheusMetrics struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestPrometheusMetrics creates metrics with default options.
func NewHTTPRequestPrometheusMetrics() *HTTPRequestPrometheusMetrics {
	return NewHTTPRequestPrometheusMetricsWithOpts(HTTPRequestPrometheusMetricsOpts{})
}

// NewHTTPRequestPrometheusMetricsWithOpts creates metrics with the given options.
func NewHTTPRequestPrometheusMetricsWithOpts(opts HTTPRequestPrometheusMetricsOpts) *HTTPRequestPrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestPrometheusMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "A histogram of the HTTP request durations.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{labelMethod, labelRoutePattern, labelUserAgentType, labelStatusCode}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Current number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}, []string{labelMethod, labelRoutePattern, labelUserAgentType}),
	}
}

// MustRegister registers the metrics in the default Prometheus registerer and panics on error.
func (m *HTTPRequestPrometheusMetrics) MustRegister() {
	prometheus.MustRegister(m.Durations, m.InFlight)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (m *HTTPRequestPrometheusMetrics) Unregister() {
	prometheus.Unregister(m.Durations)
	prometheus.Unregister(m.InFlight)
}

// UserAgentTypeGetterFunc classifies the request's user agent. It must return a bounded set of values.
type UserAgentTypeGetterFunc func(r *http.Request) string

// HTTPRequestMetricsOpts configures the HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	GetUserAgentType  UserAgentTypeGetterFunc
	ExcludedEndpoints []string
}

// HTTPRequestMetrics is a middleware that observes the duration and in-flight count of requests.
func HTTPRequestMetrics(
	metrics *HTTPRequestPrometheusMetrics, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(metrics, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is a configurable version of HTTPRequestMetrics.
// Requests to excluded endpoints are not observed.
func HTTPRequestMetricsWithOpts(
	metrics *HTTPRequestPrometheusMetrics, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	getUserAgentType := opts.GetUserAgentType
	if getUserAgentType == nil {
		getUserAgentType = userAgentType
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if slices.Contains(opts.ExcludedEndpoints, r.URL.Path) {
				next.ServeHTTP(rw, r)
				return
			}
			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
			}

			// The route pattern may be unknown until the router has matched the request.
			labels := prometheus.Labels{
				labelMethod:        r.Method,
				labelRoutePattern:  getRoutePattern(r),
				labelUserAgentType: getUserAgentType(r),
			}
			inFlight := metrics.InFlight.With(labels)
			inFlight.Inc()
			defer inFlight.Dec()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				status := statusOrOK(wrw)
				p := recover()
				if p != nil {
					if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
						panic(p)
					}
					status = http.StatusInternalServerError
				}
				observed := prometheus.Labels{
					labelMethod:        labels[labelMethod],
					labelRoutePattern:  labels[labelRoutePattern],
					labelUserAgentType: labels[labelUserAgentType],
					labelStatusCode:    strconv.Itoa(status),
				}
				if observed[labelRoutePattern] == "" {
					observed[labelRoutePattern] = getRoutePattern(r)
				}
				metrics.Durations.With(observed).Observe(time.Since(startTime).Seconds())
				if p != nil {
					panic(p)
				}
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}

func userAgentType(r *http.Request) string {
	if strings.Contains(strings.ToLower(r.UserAgent()), "mozilla") {
		return userAgentTypeBrowser
	}
	return userAgentTypeHTTPClient
}
