/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resolver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-resolvekit/fetchpool"
	"github.com/acronis/go-resolvekit/lrucache"
)

// Resolution outcomes.
const (
	OutcomeCache        = "cache"
	OutcomeOrigin       = "origin"
	OutcomeInvalidInput = "invalid_input"
	OutcomeRateLimited  = "rate_limited"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
	OutcomeCanceled     = "canceled"
)

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics groups Prometheus metrics of the resolver, its cache and its fetch coordinator.
type PrometheusMetrics struct {
	ResolutionsTotal *prometheus.CounterVec
	Cache            *lrucache.PrometheusMetrics
	Fetch            *fetchpool.PrometheusMetrics
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	resolutionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "resolutions_total",
			Help:        "Number of entity resolutions by outcome.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{"outcome"},
	)
	return &PrometheusMetrics{
		ResolutionsTotal: resolutionsTotal,
		Cache: lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
			Namespace:   opts.Namespace,
			ConstLabels: opts.ConstLabels,
		}),
		Fetch: fetchpool.NewPrometheusMetricsWithOpts(fetchpool.PrometheusMetricsOpts{
			Namespace:   opts.Namespace,
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister registers all metrics in Prometheus default registry.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.ResolutionsTotal)
	pm.Cache.MustRegister()
	pm.Fetch.MustRegister()
}

// Unregister unregisters all metrics from Prometheus default registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ResolutionsTotal)
	pm.Cache.Unregister()
	pm.Fetch.Unregister()
}

func (pm *PrometheusMetrics) incResolutions(outcome string) {
	pm.ResolutionsTotal.WithLabelValues(outcome).Inc()
}
