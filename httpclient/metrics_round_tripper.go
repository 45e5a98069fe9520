/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-resolvekit/internal/libinfo"
)

// Prometheus labels.
const (
	metricsLabelRequestType = "request_type"
	metricsLabelMethod      = "method"
	metricsLabelStatus      = "status"
)

// statusTransportError is used as a status label value when no response is received.
const statusTransportError = "0"

// DefaultPrometheusDurationBuckets is default buckets for the upstream request duration histogram.
var DefaultPrometheusDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// PrometheusMetrics represents collector of metrics for outgoing HTTP requests.
type PrometheusMetrics struct {
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultPrometheusDurationBuckets
	}
	return &PrometheusMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_client_request_duration_seconds",
			Help:        "A histogram of the upstream HTTP requests durations.",
			Buckets:     buckets,
			ConstLabels: libinfo.AddPrometheusVersionLabel(opts.ConstLabels),
		}, []string{metricsLabelRequestType, metricsLabelMethod, metricsLabelStatus}),
	}
}

// MustRegister registers metrics in Prometheus client and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Durations)
}

// Unregister cancels registration of metrics in Prometheus client.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Durations)
}

// MetricsRoundTripper observes durations of outgoing requests.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Metrics     *PrometheusMetrics
}

// NewMetricsRoundTripper creates a new MetricsRoundTripper.
func NewMetricsRoundTripper(delegate http.RoundTripper, requestType string, metrics *PrometheusMetrics) *MetricsRoundTripper {
	return &MetricsRoundTripper{Delegate: delegate, RequestType: requestType, Metrics: metrics}
}

// RoundTrip sends the request and observes its duration.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	startTime := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := statusTransportError
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Metrics.Durations.With(prometheus.Labels{
		metricsLabelRequestType: requestType(r.Context(), rt.RequestType),
		metricsLabelMethod:      r.Method,
		metricsLabelStatus:      status,
	}).Observe(time.Since(startTime).Seconds())
	return resp, err
}
