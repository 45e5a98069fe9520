/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/config"
	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/internal/libinfo"
	"github.com/acronis/go-resolvekit/log/logtest"
)

type recordedRequest struct {
	method       string
	body         string
	userAgent    string
	requestID    string
	retryAttempt string
}

// upstream replies with the queued status codes (200 when the queue is empty) and records incoming requests.
type upstream struct {
	*httptest.Server
	mu       sync.Mutex
	statuses []int
	requests []recordedRequest
}

func newUpstream(t *testing.T, statuses ...int) *upstream {
	t.Helper()
	u := &upstream{statuses: statuses}
	u.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.requests = append(u.requests, recordedRequest{
			method:       r.Method,
			body:         string(body),
			userAgent:    r.Header.Get("User-Agent"),
			requestID:    r.Header.Get(RequestIDHeader),
			retryAttempt: r.Header.Get(RetryAttemptNumberHeader),
		})
		status := http.StatusOK
		if len(u.statuses) > 0 {
			status, u.statuses = u.statuses[0], u.statuses[1:]
		}
		u.mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) Requests() []recordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]recordedRequest(nil), u.requests...)
}

func newFastRetriesConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Retries.Policy.Strategy = RetryPolicyConstant
	cfg.Retries.Policy.Interval = config.TimeDuration(time.Millisecond)
	return cfg
}

func TestNew_Retries(t *testing.T) {
	t.Run("GET is retried on 503", func(t *testing.T) {
		srv := newUpstream(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
		client := Must(newFastRetriesConfig(), Opts{RequestType: "origin"})

		resp, err := client.Get(srv.URL + "/users/1")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		reqs := srv.Requests()
		require.Len(t, reqs, 3)
		require.Equal(t, "", reqs[0].retryAttempt)
		require.Equal(t, "1", reqs[1].retryAttempt)
		require.Equal(t, "2", reqs[2].retryAttempt)
	})

	t.Run("attempts are limited", func(t *testing.T) {
		srv := newUpstream(t, 500, 500, 500, 500, 500, 500)
		cfg := newFastRetriesConfig()
		cfg.Retries.MaxAttempts = 2
		client := Must(cfg, Opts{})

		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Len(t, srv.Requests(), 3)
	})

	t.Run("POST is not retried on 503", func(t *testing.T) {
		srv := newUpstream(t, http.StatusServiceUnavailable)
		client := Must(newFastRetriesConfig(), Opts{})

		resp, err := client.Post(srv.URL+"/users", "application/json", strings.NewReader(`{"name":"Bob"}`))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Len(t, srv.Requests(), 1)
	})

	t.Run("idempotent POST is retried with the same body", func(t *testing.T) {
		srv := newUpstream(t, http.StatusBadGateway)
		client := Must(newFastRetriesConfig(), Opts{})

		ctx := NewContextWithIdempotentHint(context.Background(), true)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/users", strings.NewReader(`{"name":"Bob"}`))
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		require.Equal(t, `{"name":"Bob"}`, reqs[0].body)
		require.Equal(t, `{"name":"Bob"}`, reqs[1].body)
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		srv := newUpstream(t, http.StatusNotFound)
		client := Must(newFastRetriesConfig(), Opts{})

		resp, err := client.Get(srv.URL + "/users/42")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Len(t, srv.Requests(), 1)
	})

	t.Run("retries are disabled", func(t *testing.T) {
		srv := newUpstream(t, http.StatusServiceUnavailable)
		cfg := newFastRetriesConfig()
		cfg.Retries.Enabled = false
		client := Must(cfg, Opts{})

		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Len(t, srv.Requests(), 1)
	})
}

func TestNew_Headers(t *testing.T) {
	srv := newUpstream(t)
	client := Must(NewDefaultConfig(), Opts{})

	ctx := middleware.NewContextWithRequestID(context.Background(), "req-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	req, err = http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "resolverd")
	req.Header.Set(RequestIDHeader, "explicit-id")
	resp, err = client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, libinfo.UserAgent(), reqs[0].userAgent)
	require.Equal(t, "req-123", reqs[0].requestID)
	require.Equal(t, "resolverd "+libinfo.UserAgent(), reqs[1].userAgent)
	require.Equal(t, "explicit-id", reqs[1].requestID)
}

func TestNew_RateLimiting(t *testing.T) {
	srv := newUpstream(t)
	cfg := NewDefaultConfig()
	cfg.RateLimits = RateLimitsConfig{Enabled: true, Limit: 1, Burst: 1, WaitTimeout: config.TimeDuration(50 * time.Millisecond)}
	client := Must(cfg, Opts{})

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	_, err = client.Get(srv.URL)
	var waitErr *RateLimitingWaitError
	require.ErrorAs(t, err, &waitErr)
	require.Len(t, srv.Requests(), 1)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RateLimits.Enabled = true
	_, err := New(cfg, Opts{})
	require.EqualError(t, err, "create rate limiting round tripper: rate limit must be positive")
	require.Panics(t, func() { Must(cfg, Opts{}) })
}

func TestNew_LoggingAndMetrics(t *testing.T) {
	srv := newUpstream(t, http.StatusNotFound)
	logger := logtest.NewRecorder()
	metrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "test"})
	client := Must(NewDefaultConfig(), Opts{RequestType: "origin", Logger: logger, Metrics: metrics})

	resp, err := client.Get(srv.URL + "/users/42")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, err = client.Get(srv.URL + "/users/1")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	// Only the failed request is logged in the default mode.
	entries := logger.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "upstream request done", entries[0].Text)
	uri, found := entries[0].FindField("uri")
	require.True(t, found)
	require.Equal(t, srv.URL+"/users/42", string(uri.Bytes))

	require.Equal(t, 2, promtestutil.CollectAndCount(metrics.Durations))
	hist := metrics.Durations.With(prometheus.Labels{
		metricsLabelRequestType: "origin", metricsLabelMethod: http.MethodGet, metricsLabelStatus: "404",
	}).(prometheus.Histogram)
	require.Equal(t, 1, promtestutil.CollectAndCount(hist))
}
