/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log/logtest"
	"github.com/acronis/go-resolvekit/restapi"
	"github.com/acronis/go-resolvekit/testutil"
)

const testErrDomain = "TestDomain"

func newTestConfig(addr string) *Config {
	cfg := NewDefaultConfig()
	cfg.Address = addr
	return cfg
}

func TestHTTPServer_StartStop(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	logger := logtest.NewRecorder()
	httpServer := New(newTestConfig(addr), logger, Opts{
		ErrorDomain: testErrDomain,
		APIRoutes: []APIRoute{func(router chi.Router) {
			router.Get("/hello", func(rw http.ResponseWriter, r *http.Request) {
				restapi.RespondJSON(rw, map[string]string{
					"client": middleware.GetClientKeyFromContext(r.Context()),
				}, middleware.GetLoggerFromContext(r.Context()))
			})
		}},
	})
	require.Equal(t, "http://"+addr, httpServer.URL)

	fatalErr := make(chan error, 1)
	go httpServer.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))
	require.Equal(t, addr, fmt.Sprintf("127.0.0.1:%d", httpServer.GetPort()))

	req, err := http.NewRequest(http.MethodGet, httpServer.URL+"/hello", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	var respData map[string]string
	require.NoError(t, restapi.DoRequestAndUnmarshalJSON(http.DefaultClient, req, &respData, logger))
	require.Equal(t, map[string]string{"client": "198.51.100.1"}, respData)

	require.NoError(t, httpServer.Stop(true))
	select {
	case err = <-fatalErr:
		require.NoError(t, err)
	default:
	}
	_, found := logger.FindEntry("API HTTP server shut down")
	require.True(t, found)
}

func TestHTTPServer_StartWithListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	httpServer := New(newTestConfig(listener.Addr().String()), logtest.NewLogger(), Opts{Listener: listener})
	fatalErr := make(chan error, 1)
	go httpServer.Start(fatalErr)
	port, err := testutil.WaitPortAndListeningServer("127.0.0.1", httpServer.GetPort, time.Second*3)
	require.NoError(t, err)
	require.Equal(t, listener.Addr().(*net.TCPAddr).Port, port)

	require.NoError(t, httpServer.Stop(false))
}

func TestHTTPServer_StartFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	httpServer := New(newTestConfig(busy.Addr().String()), logtest.NewLogger(), Opts{})
	fatalErr := make(chan error, 1)
	httpServer.Start(fatalErr)
	require.Error(t, <-fatalErr)
}

func TestNewRouter(t *testing.T) {
	promMetrics := middleware.NewHTTPRequestPrometheusMetrics()
	healthy := true
	cfg := NewDefaultConfig()
	cfg.Limits.MaxBodySizeBytes = 16
	router := NewRouter(cfg, logtest.NewLogger(), Opts{
		ErrorDomain: testErrDomain,
		HealthCheck: func(context.Context) (HealthCheckResult, error) {
			if healthy {
				return HealthCheckResult{"origin": HealthCheckStatusOK}, nil
			}
			return HealthCheckResult{"origin": HealthCheckStatusFail}, nil
		},
		MetricsHandler: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		APIRoutes: []APIRoute{func(router chi.Router) {
			router.Get("/users/{id}", func(rw http.ResponseWriter, r *http.Request) {
				rw.WriteHeader(http.StatusOK)
			})
			router.Post("/users", func(rw http.ResponseWriter, r *http.Request) {
				if _, err := io.ReadAll(r.Body); err != nil {
					restapi.RespondMalformedRequestOrInternalError(rw, testErrDomain, restapi.NewTooLargeMalformedRequestError(16), nil)
					return
				}
				rw.WriteHeader(http.StatusCreated)
			})
			router.Get("/panic", func(rw http.ResponseWriter, r *http.Request) {
				panic("boom")
			})
		}},
	}, promMetrics)

	serve := func(method, target string, body io.Reader) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(method, target, body))
		return resp
	}

	t.Run("request id headers", func(t *testing.T) {
		resp := serve(http.MethodGet, "/users/1", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		require.NotEmpty(t, resp.Header().Get("X-Request-ID"))
		require.NotEmpty(t, resp.Header().Get("X-Int-Request-ID"))
	})

	t.Run("not found", func(t *testing.T) {
		resp := serve(http.MethodGet, "/unknown", nil)
		testutil.RequireErrorInRecorder(t, resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp := serve(http.MethodPut, "/users/1", nil)
		testutil.RequireErrorInRecorder(t, resp, http.StatusMethodNotAllowed, testErrDomain, restapi.ErrCodeMethodNotAllowed)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		resp := serve(http.MethodGet, "/panic", nil)
		testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, testErrDomain, restapi.ErrCodeInternal)
	})

	t.Run("request body limit", func(t *testing.T) {
		resp := serve(http.MethodPost, "/users", strings.NewReader(`{"name":"a"}`))
		require.Equal(t, http.StatusCreated, resp.Code)

		resp = serve(http.MethodPost, "/users", strings.NewReader(strings.Repeat("a", 64)))
		testutil.RequireErrorInRecorder(t, resp, http.StatusRequestEntityTooLarge, testErrDomain, "requestEntityTooLarge")
	})

	t.Run("health check", func(t *testing.T) {
		require.Equal(t, http.StatusOK, serve(http.MethodGet, "/healthz", nil).Code)
		healthy = false
		require.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/healthz", nil).Code)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		require.Equal(t, http.StatusOK, serve(http.MethodGet, "/metrics", nil).Code)
	})

	t.Run("route pattern is used in metrics", func(t *testing.T) {
		serve(http.MethodGet, "/users/42", nil)
		hist := promMetrics.Durations.With(prometheus.Labels{
			"method":          http.MethodGet,
			"route_pattern":   "/users/{id}",
			"user_agent_type": "http-client",
			"status_code":     "200",
		})
		testutil.AssertSamplesCountInHistogram(t, hist.(prometheus.Histogram), 2)
	})
}
