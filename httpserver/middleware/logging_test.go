/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/log/logtest"
)

func newUsersRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(`{"name":"Bob","email":"bob@example.com"}`))
	req.Header.Set("User-Agent", "resolvekit-test")
	ctx := NewContextWithRequestID(req.Context(), "ext-id")
	return req.WithContext(NewContextWithInternalRequestID(ctx, "int-id"))
}

func respondWith(status int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(status)
		_, _ = rw.Write([]byte(http.StatusText(status)))
	}
}

func TestLogging_ResponseEntry(t *testing.T) {
	tests := []struct {
		name        string
		opts        LoggingOpts
		status      int
		wantEntries int
		wantHeaders map[string]string
	}{
		{name: "response only", status: http.StatusCreated, wantEntries: 1},
		{name: "request start enabled", opts: LoggingOpts{RequestStart: true}, status: http.StatusBadRequest, wantEntries: 2},
		{
			name:        "request headers",
			opts:        LoggingOpts{RequestHeaders: []string{"X-Forwarded-For", "X-Tenant"}},
			status:      http.StatusOK,
			wantEntries: 1,
			wantHeaders: map[string]string{"req_header_x_forwarded_for": "203.0.113.7", "req_header_x_tenant": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newUsersRequest(http.MethodPost, "/users")
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			logger := logtest.NewRecorder()

			var ctxLogger log.FieldLogger
			next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				ctxLogger = GetLoggerFromContext(r.Context())
				respondWith(tt.status)(rw, r)
			})
			LoggingWithOpts(logger, tt.opts)(next).ServeHTTP(httptest.NewRecorder(), req)

			require.NotNil(t, ctxLogger)
			entries := logger.Entries()
			require.Len(t, entries, tt.wantEntries)
			if tt.opts.RequestStart {
				require.Equal(t, "request started", entries[0].Text)
			}
			last := entries[len(entries)-1]
			require.True(t, strings.HasPrefix(last.Text, "response completed in "))
			require.Equal(t, log.LevelInfo, last.Level)
			requireFieldString(t, last, "request_id", "ext-id")
			requireFieldString(t, last, "int_request_id", "int-id")
			requireFieldString(t, last, "method", http.MethodPost)
			requireFieldString(t, last, "uri", "/users")
			requireFieldString(t, last, "user_agent", "resolvekit-test")
			requireFieldInt(t, last, "status", tt.status)
			requireFieldInt(t, last, "bytes_sent", len(http.StatusText(tt.status)))
			requireRemoteAddr(t, last, req.RemoteAddr)
			for key, val := range tt.wantHeaders {
				requireFieldString(t, last, key, val)
			}
		})
	}
}

func TestLogging_ExcludedEndpoints(t *testing.T) {
	tests := []struct {
		target      string
		status      int
		wantEntries int
	}{
		{target: "/healthz", status: http.StatusOK, wantEntries: 0},
		{target: "/healthz?verbose=1", status: http.StatusOK, wantEntries: 0},
		{target: "/healthz", status: http.StatusServiceUnavailable, wantEntries: 1},
		{target: "/users/1", status: http.StatusOK, wantEntries: 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %d", tt.target, tt.status), func(t *testing.T) {
			logger := logtest.NewRecorder()
			mw := LoggingWithOpts(logger, LoggingOpts{RequestStart: true, ExcludedEndpoints: []string{"/healthz"}})
			mw(respondWith(tt.status)).ServeHTTP(httptest.NewRecorder(), newUsersRequest(http.MethodGet, tt.target))
			require.Len(t, logger.Entries(), tt.wantEntries)
		})
	}
}

func TestLogging_LoggingParams(t *testing.T) {
	logger := logtest.NewRecorder()
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		lp := GetLoggingParamsFromContext(r.Context())
		require.NotNil(t, lp)
		lp.ExtendFields(log.String("resolve_source", "cache"), log.Int("user_id", 42))
		rw.WriteHeader(http.StatusOK)
	})
	Logging(logger)(next).ServeHTTP(httptest.NewRecorder(), newUsersRequest(http.MethodGet, "/users/42"))

	require.Len(t, logger.Entries(), 1)
	entry := logger.Entries()[0]
	requireFieldString(t, entry, "resolve_source", "cache")
	requireFieldInt(t, entry, "user_id", 42)
	_, found := entry.FindField("time_slots")
	require.False(t, found, "fast requests must not log time slots")
}

func TestLogging_ClientKey(t *testing.T) {
	logger := logtest.NewRecorder()
	req := newUsersRequest(http.MethodGet, "/users/1")
	req = req.WithContext(NewContextWithClientKey(req.Context(), "198.51.100.1"))
	Logging(logger)(respondWith(http.StatusOK)).ServeHTTP(httptest.NewRecorder(), req)
	requireFieldString(t, logger.Entries()[0], "client_key", "198.51.100.1")

	logger.Reset()
	Logging(logger)(respondWith(http.StatusOK)).ServeHTTP(httptest.NewRecorder(), newUsersRequest(http.MethodGet, "/users/1"))
	_, found := logger.Entries()[0].FindField("client_key")
	require.False(t, found)
}

func TestLogging_EmptyResponseIsOK(t *testing.T) {
	logger := logtest.NewRecorder()
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})
	Logging(logger)(next).ServeHTTP(httptest.NewRecorder(), newUsersRequest(http.MethodDelete, "/cache"))

	require.Len(t, logger.Entries(), 1)
	requireFieldInt(t, logger.Entries()[0], "status", http.StatusOK)
	requireFieldInt(t, logger.Entries()[0], "bytes_sent", 0)
}

func TestLogging_SlowRequest(t *testing.T) {
	req := newUsersRequest(http.MethodGet, "/users/1")
	req = req.WithContext(NewContextWithRequestStartTime(req.Context(), time.Now().Add(-time.Minute)))
	logger := logtest.NewRecorder()
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		lp := GetLoggingParamsFromContext(r.Context())
		lp.AddTimeSlotDurationInMs("resolve_ms", 250*time.Millisecond)
		lp.AddTimeSlotDurationInMs("resolve_ms", 50*time.Millisecond)
		rw.WriteHeader(http.StatusOK)
	})
	LoggingWithOpts(logger, LoggingOpts{SlowRequestThreshold: time.Second})(next).ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, logger.Entries(), 1)
	slotsField, found := logger.Entries()[0].FindField("time_slots")
	require.True(t, found)
	require.Equal(t, timeSlots{"resolve_ms": 300}, slotsField.Any)
	durField, found := logger.Entries()[0].FindField("duration_ms")
	require.True(t, found)
	require.GreaterOrEqual(t, durField.Int, time.Minute.Milliseconds())
}

func requireFieldString(t *testing.T, entry logtest.RecordedEntry, key, want string) {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q not found", key)
	require.Equal(t, want, string(field.Bytes))
}

func requireFieldInt(t *testing.T, entry logtest.RecordedEntry, key string, want int) {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q not found", key)
	require.Equal(t, want, int(field.Int))
}

func requireRemoteAddr(t *testing.T, entry logtest.RecordedEntry, want string) {
	t.Helper()
	ipField, found := entry.FindField("remote_addr_ip")
	require.True(t, found)
	portField, found := entry.FindField("remote_addr_port")
	require.True(t, found)
	require.Equal(t, want, fmt.Sprintf("%s:%d", ipField.Bytes, uint16(portField.Int)))
}
