/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var responseErrors atomic.Pointer[prometheus.CounterVec]

// MustRegisterErrorMetrics registers the counter of error responses labeled by error domain and code
// in the default Prometheus registry. It panics if the counter is already registered.
func MustRegisterErrorMetrics(namespace string, constLabels prometheus.Labels) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "restapi",
		Name:        "response_errors",
		Help:        "Number of error responses.",
		ConstLabels: constLabels,
	}, []string{"domain", "code"})
	prometheus.MustRegister(counter)
	responseErrors.Store(counter)
}

// UnregisterErrorMetrics is the inverse of MustRegisterErrorMetrics.
func UnregisterErrorMetrics() {
	if counter := responseErrors.Swap(nil); counter != nil {
		prometheus.Unregister(counter)
	}
}

func countResponseError(err *Error) {
	if counter := responseErrors.Load(); counter != nil {
		counter.WithLabelValues(err.Domain, err.Code).Inc()
	}
}
