/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/testutil"
)

func pathAsRoutePattern(r *http.Request) string { return r.URL.Path }

func observedDurations(m *HTTPRequestPrometheusMetrics, method, route, uaType string, code int) prometheus.Histogram {
	return m.Durations.With(prometheus.Labels{
		labelMethod:        method,
		labelRoutePattern:  route,
		labelUserAgentType: uaType,
		labelStatusCode:    strconv.Itoa(code),
	}).(prometheus.Histogram)
}

func TestHTTPRequestMetrics_Durations(t *testing.T) {
	customUAType := func(r *http.Request) string {
		if r.UserAgent() == "resolvekit-client" {
			return "resolvekit"
		}
		return userAgentTypeHTTPClient
	}

	tests := []struct {
		name       string
		method     string
		path       string
		userAgent  string
		code       int
		calls      int
		opts       HTTPRequestMetricsOpts
		wantUAType string
		wantCount  int
	}{
		{
			name: "api client", method: http.MethodGet, path: "/users/1", userAgent: "curl/8.0",
			code: http.StatusOK, calls: 4, wantUAType: userAgentTypeHTTPClient, wantCount: 4,
		},
		{
			name: "browser", method: http.MethodDelete, path: "/cache", userAgent: "Mozilla/5.0 (X11; Linux x86_64)",
			code: http.StatusNoContent, calls: 2, wantUAType: userAgentTypeBrowser, wantCount: 2,
		},
		{
			name: "custom user agent classification", method: http.MethodGet, path: "/cache/status", userAgent: "resolvekit-client",
			code: http.StatusTooManyRequests, calls: 3, opts: HTTPRequestMetricsOpts{GetUserAgentType: customUAType},
			wantUAType: "resolvekit", wantCount: 3,
		},
		{
			name: "excluded endpoint", method: http.MethodGet, path: "/healthz", userAgent: "kube-probe/1.30",
			code: http.StatusOK, calls: 5, opts: HTTPRequestMetricsOpts{ExcludedEndpoints: []string{"/healthz"}},
			wantUAType: userAgentTypeHTTPClient, wantCount: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promMetrics := NewHTTPRequestPrometheusMetrics()
			served := 0
			h := HTTPRequestMetricsWithOpts(promMetrics, pathAsRoutePattern, tt.opts)(
				http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
					served++
					rw.WriteHeader(tt.code)
				}))

			for i := 0; i < tt.calls; i++ {
				req := httptest.NewRequest(tt.method, tt.path, nil)
				req.Header.Set("User-Agent", tt.userAgent)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				require.Equal(t, tt.code, rec.Code)
			}

			require.Equal(t, tt.calls, served)
			testutil.AssertSamplesCountInHistogram(t,
				observedDurations(promMetrics, tt.method, tt.path, tt.wantUAType, tt.code), tt.wantCount)
		})
	}
}

func TestHTTPRequestMetrics_InFlight(t *testing.T) {
	promMetrics := NewHTTPRequestPrometheusMetrics()
	var duringRequest float64
	h := HTTPRequestMetrics(promMetrics, pathAsRoutePattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		duringRequest = promtestutil.ToFloat64(promMetrics.InFlight)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/1", nil))

	require.Equal(t, float64(1), duringRequest)
	require.Equal(t, float64(0), promtestutil.ToFloat64(promMetrics.InFlight))
}

func TestHTTPRequestMetrics_StatusFallbacks(t *testing.T) {
	t.Run("panic is observed as 500", func(t *testing.T) {
		promMetrics := NewHTTPRequestPrometheusMetrics()
		h := HTTPRequestMetrics(promMetrics, pathAsRoutePattern)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		require.Panics(t, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/2", nil))
		})
		testutil.AssertSamplesCountInHistogram(t,
			observedDurations(promMetrics, http.MethodGet, "/users/2", userAgentTypeHTTPClient, http.StatusInternalServerError), 1)
	})

	t.Run("handler without explicit status is observed as 200", func(t *testing.T) {
		promMetrics := NewHTTPRequestPrometheusMetrics()
		h := HTTPRequestMetrics(promMetrics, pathAsRoutePattern)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/cache", nil))
		testutil.AssertSamplesCountInHistogram(t,
			observedDurations(promMetrics, http.MethodDelete, "/cache", userAgentTypeHTTPClient, http.StatusOK), 1)
	})
}

func TestHTTPRequestMetrics_NilRoutePatternGetter(t *testing.T) {
	require.Panics(t, func() { HTTPRequestMetrics(NewHTTPRequestPrometheusMetrics(), nil) })
}
