/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/httpserver"
	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log/logtest"
	"github.com/acronis/go-resolvekit/resolver"
	"github.com/acronis/go-resolvekit/restapi"
	"github.com/acronis/go-resolvekit/testutil"
	"github.com/acronis/go-resolvekit/userstore"
)

type brokenStore struct {
	pingErr error
	crash   error
}

func (s *brokenStore) Get(context.Context, int64) (userstore.User, error) {
	if s.crash != nil {
		panic(s.crash)
	}
	return userstore.User{}, errors.New("connection refused")
}

func (s *brokenStore) Create(context.Context, string, string) (userstore.User, error) {
	return userstore.User{}, errors.New("connection refused")
}

func (s *brokenStore) Ping(context.Context) error { return s.pingErr }

func (s *brokenStore) Close() error { return nil }

type testAPI struct {
	server   *httptest.Server
	resolver *resolver.Resolver[userstore.User]
}

func newTestAPI(t *testing.T, store userstore.Store) *testAPI {
	t.Helper()
	cfg := resolver.NewDefaultConfig()
	limiter, err := cfg.NewLimiter()
	require.NoError(t, err)
	res, err := resolver.New[userstore.User](limiter, userstore.FetchFunc(store), cfg, resolver.Opts{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, res.Close()) })

	h := New(res, store)
	router := httpserver.NewRouter(httpserver.NewDefaultConfig(), logtest.NewLogger(), httpserver.Opts{
		ErrorDomain: ErrorDomain,
		APIRoutes:   []httpserver.APIRoute{h.Routes},
		HealthCheck: h.HealthCheck,
	}, middleware.NewHTTPRequestPrometheusMetrics())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testAPI{server: server, resolver: res}
}

func (a *testAPI) do(t *testing.T, method, path, clientIP, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, a.server.URL+path, nil)
	}
	require.NoError(t, err)
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testAPI) getUser(t *testing.T, id string, clientIP string) (UserResponse, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+"/users/"+id, nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", clientIP)
	var userResp UserResponse
	err = restapi.DoRequestAndUnmarshalJSON(http.DefaultClient, req, &userResp, logtest.NewLogger())
	return userResp, err
}

func TestHandler_GetUser(t *testing.T) {
	api := newTestAPI(t, userstore.NewMemoryStore(userstore.MemoryStoreOpts{}))

	userResp, err := api.getUser(t, "1", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, UserResponse{
		Source: resolver.SourceOrigin,
		User:   userstore.User{ID: 1, Name: "John Doe", Email: "john@example.com"},
	}, userResp)

	userResp, err = api.getUser(t, "1", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, resolver.SourceCache, userResp.Source)
	require.Equal(t, "John Doe", userResp.User.Name)

	stats := api.resolver.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, 1, stats.Size)
}

func TestHandler_GetUser_Errors(t *testing.T) {
	api := newTestAPI(t, userstore.NewMemoryStore(userstore.MemoryStoreOpts{}))

	t.Run("invalid id", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/users/abc", "10.0.1.1", "")
		testutil.RequireErrorInResponse(t, resp, http.StatusBadRequest, ErrorDomain, ErrCodeInvalidID)
	})

	t.Run("not found", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/users/999", "10.0.1.2", "")
		testutil.RequireErrorInResponse(t, resp, http.StatusNotFound, ErrorDomain, ErrCodeUserNotFound)
	})

	t.Run("rate limited", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := api.getUser(t, "2", "10.0.1.3")
			require.NoError(t, err)
		}
		resp := api.do(t, http.MethodGet, "/users/2", "10.0.1.3", "")
		require.Equal(t, "2", resp.Header.Get("Retry-After"))
		testutil.RequireErrorInResponse(t, resp, http.StatusTooManyRequests, ErrorDomain, restapi.ErrCodeTooManyRequests)

		// Another client is not affected.
		_, err := api.getUser(t, "2", "10.0.1.4")
		require.NoError(t, err)
	})

	t.Run("rejected requests are not resolved", func(t *testing.T) {
		var clientErr *restapi.ClientError
		_, err := api.getUser(t, "3", "10.0.1.3")
		require.ErrorAs(t, err, &clientErr)
		require.Equal(t, http.StatusTooManyRequests, clientErr.StatusCode)
	})
}

func TestHandler_GetUser_FetchFailed(t *testing.T) {
	api := newTestAPI(t, &brokenStore{})
	resp := api.do(t, http.MethodGet, "/users/1", "10.0.2.1", "")
	testutil.RequireErrorInResponse(t, resp, http.StatusInternalServerError, ErrorDomain, ErrCodeFetchFailed)
	require.Equal(t, 0, api.resolver.Stats().Size)
}

func TestHandler_GetUser_OriginCrash(t *testing.T) {
	api := newTestAPI(t, &brokenStore{crash: resolver.ErrNotFound})
	resp := api.do(t, http.MethodGet, "/users/1", "10.0.2.2", "")
	testutil.RequireErrorInResponse(t, resp, http.StatusInternalServerError, ErrorDomain, ErrCodeFetchFailed)
}

func TestHandler_CreateUser(t *testing.T) {
	api := newTestAPI(t, userstore.NewMemoryStore(userstore.MemoryStoreOpts{}))

	t.Run("created user is cached", func(t *testing.T) {
		req, err := restapi.NewJSONRequest(http.MethodPost, api.server.URL+"/users",
			CreateUserRequest{Name: "Bob Brown", Email: "bob@example.com"})
		require.NoError(t, err)
		var created CreatedUserResponse
		require.NoError(t, restapi.DoRequestAndUnmarshalJSON(http.DefaultClient, req, &created, logtest.NewLogger()))
		require.Equal(t, userstore.User{ID: 4, Name: "Bob Brown", Email: "bob@example.com"}, created.User)

		userResp, err := api.getUser(t, "4", "10.0.3.1")
		require.NoError(t, err)
		require.Equal(t, UserResponse{Source: resolver.SourceCache, User: created.User}, userResp)
	})

	t.Run("missing email", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/users", "", `{"name":"Bob"}`)
		testutil.RequireErrorInResponse(t, resp, http.StatusBadRequest, ErrorDomain, ErrCodeInvalidUser)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/users", "", `{"name":`)
		testutil.RequireErrorInResponse(t, resp, http.StatusBadRequest, ErrorDomain, "badRequest")
	})

	t.Run("unknown fields", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/users", "", `{"name":"Bob","email":"bob@example.com","role":"admin"}`)
		testutil.RequireErrorInResponse(t, resp, http.StatusBadRequest, ErrorDomain, "badRequest")
	})

	t.Run("origin failure", func(t *testing.T) {
		brokenAPI := newTestAPI(t, &brokenStore{})
		resp := brokenAPI.do(t, http.MethodPost, "/users", "", `{"name":"Bob","email":"bob@example.com"}`)
		testutil.RequireErrorInResponse(t, resp, http.StatusInternalServerError, ErrorDomain, restapi.ErrCodeInternal)
	})
}

func TestHandler_Cache(t *testing.T) {
	api := newTestAPI(t, userstore.NewMemoryStore(userstore.MemoryStoreOpts{}))
	for _, id := range []string{"1", "2", "1"} {
		_, err := api.getUser(t, id, "10.0.4.1")
		require.NoError(t, err)
	}

	requireStatus := func(t *testing.T, want resolver.Stats) {
		t.Helper()
		var got resolver.Stats
		req, err := http.NewRequest(http.MethodGet, api.server.URL+"/cache-status", nil)
		require.NoError(t, err)
		require.NoError(t, restapi.DoRequestAndUnmarshalJSON(http.DefaultClient, req, &got, logtest.NewLogger()))
		require.GreaterOrEqual(t, got.AvgResponseTimeMs, float64(0))
		got.AvgResponseTimeMs = 0
		require.Equal(t, want, got)
	}

	requireStatus(t, resolver.Stats{Hits: 1, Misses: 2, Size: 2, Requests: 3})

	resp := api.do(t, http.MethodDelete, "/cache/1", "", "")
	testutil.RequireStringJSONInResponse(t, resp, `{"ok":true,"deleted":true}`)

	resp = api.do(t, http.MethodDelete, "/cache/1", "", "")
	testutil.RequireStringJSONInResponse(t, resp, `{"ok":true,"deleted":false}`)

	resp = api.do(t, http.MethodDelete, "/cache/one", "", "")
	testutil.RequireErrorInResponse(t, resp, http.StatusBadRequest, ErrorDomain, ErrCodeInvalidID)

	requireStatus(t, resolver.Stats{Hits: 1, Misses: 2, Size: 1, Requests: 3})

	resp = api.do(t, http.MethodDelete, "/cache", "", "")
	testutil.RequireStringJSONInResponse(t, resp, `{"ok":true}`)

	requireStatus(t, resolver.Stats{})
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		store      userstore.Store
		wantStatus int
		wantBody   string
	}{
		{
			name:       "origin is reachable",
			store:      userstore.NewMemoryStore(userstore.MemoryStoreOpts{}),
			wantStatus: http.StatusOK,
			wantBody:   `{"components":{"origin":true}}`,
		},
		{
			name:       "origin is unreachable",
			store:      &brokenStore{pingErr: fmt.Errorf("dial tcp: connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"components":{"origin":false}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, tt.store)
			resp := api.do(t, http.MethodGet, "/healthz", "", "")
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			testutil.RequireStringJSONInResponse(t, resp, tt.wantBody)
		})
	}
}
