/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector receives cache usage events.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	AddEvictions(int)
	// AddExpirations counts entries dropped because their TTL has passed.
	AddExpirations(int)
}

// PrometheusMetricsOpts configures PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace   string
	ConstLabels prometheus.Labels
}

// PrometheusMetrics is a MetricsCollector backed by Prometheus gauges and counters.
type PrometheusMetrics struct {
	EntriesAmount    prometheus.Gauge
	HitsTotal        prometheus.Counter
	MissesTotal      prometheus.Counter
	EvictionsTotal   prometheus.Counter
	ExpirationsTotal prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates PrometheusMetrics without namespace and labels.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates PrometheusMetrics with the given options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: name, Help: help, ConstLabels: opts.ConstLabels,
		})
	}
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_entries_amount",
			Help:        "Total number of entries in the cache.",
			ConstLabels: opts.ConstLabels,
		}),
		HitsTotal:        counter("cache_hits_total", "Number of requests satisfied by the cache."),
		MissesTotal:      counter("cache_misses_total", "Number of requests not satisfied by the cache."),
		EvictionsTotal:   counter("cache_evictions_total", "Number of entries evicted to make room for new ones."),
		ExpirationsTotal: counter("cache_expirations_total", "Number of entries removed after their TTL has passed."),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal, pm.ExpirationsTotal}
}

// MustRegister registers the metrics in the default Prometheus registerer and panics on error.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// Unregister removes the metrics from the default Prometheus registerer.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

func (pm *PrometheusMetrics) SetAmount(amount int) { pm.EntriesAmount.Set(float64(amount)) }
func (pm *PrometheusMetrics) IncHits()             { pm.HitsTotal.Inc() }
func (pm *PrometheusMetrics) IncMisses()           { pm.MissesTotal.Inc() }
func (pm *PrometheusMetrics) AddEvictions(n int)   { pm.EvictionsTotal.Add(float64(n)) }
func (pm *PrometheusMetrics) AddExpirations(n int) { pm.ExpirationsTotal.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)      {}
func (disabledMetrics) IncHits()           {}
func (disabledMetrics) IncMisses()         {}
func (disabledMetrics) AddEvictions(int)   {}
func (disabledMetrics) AddExpirations(int) {}

var disabledMetricsCollector MetricsCollector = disabledMetrics{}
