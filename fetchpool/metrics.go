/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fetchpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch results that are used as label values.
const (
	FetchResultOK       = "ok"
	FetchResultNotFound = "not_found"
	FetchResultError    = "error"
)

// DefaultFetchDurationBuckets is default buckets into which observations of fetch durations are counted.
var DefaultFetchDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// MetricsCollector represents a collector of metrics for the coordinator.
type MetricsCollector interface {
	// ObserveFetch observes the duration of a fetch with the given result.
	ObserveFetch(result string, duration time.Duration)

	// SetQueueLength sets the number of keys waiting for a worker.
	SetQueueLength(int)

	// SetActiveWorkers sets the number of fetches in progress.
	SetActiveWorkers(int)

	// IncDeduplicated increments the number of Resolve calls that joined an in-flight fetch.
	IncDeduplicated()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the fetch duration histogram.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the coordinator.
type PrometheusMetrics struct {
	FetchDuration     *prometheus.HistogramVec
	QueueLength       prometheus.Gauge
	ActiveWorkers     prometheus.Gauge
	DeduplicatedTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultFetchDurationBuckets
	}
	return &PrometheusMetrics{
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "fetch_duration_seconds",
			Help:        "A histogram of the origin fetch durations.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{"result"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "fetch_queue_length",
			Help:        "Number of keys waiting for a fetch worker.",
			ConstLabels: opts.ConstLabels,
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "fetch_active_workers",
			Help:        "Number of fetches in progress.",
			ConstLabels: opts.ConstLabels,
		}),
		DeduplicatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "fetch_deduplicated_total",
			Help:        "Number of requests that joined an in-flight fetch.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.FetchDuration, pm.QueueLength, pm.ActiveWorkers, pm.DeduplicatedTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.FetchDuration)
	prometheus.Unregister(pm.QueueLength)
	prometheus.Unregister(pm.ActiveWorkers)
	prometheus.Unregister(pm.DeduplicatedTotal)
}

// ObserveFetch observes the duration of a fetch with the given result.
func (pm *PrometheusMetrics) ObserveFetch(result string, duration time.Duration) {
	pm.FetchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetQueueLength sets the number of keys waiting for a worker.
func (pm *PrometheusMetrics) SetQueueLength(n int) {
	pm.QueueLength.Set(float64(n))
}

// SetActiveWorkers sets the number of fetches in progress.
func (pm *PrometheusMetrics) SetActiveWorkers(n int) {
	pm.ActiveWorkers.Set(float64(n))
}

// IncDeduplicated increments the number of requests that joined an in-flight fetch.
func (pm *PrometheusMetrics) IncDeduplicated() {
	pm.DeduplicatedTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveFetch(string, time.Duration) {}
func (disabledMetrics) SetQueueLength(int)                 {}
func (disabledMetrics) SetActiveWorkers(int)               {}
func (disabledMetrics) IncDeduplicated()                   {}

var disabledMetricsCollector = disabledMetrics{}
