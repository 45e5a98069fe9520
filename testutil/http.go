/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

// RequireErrorInRecorder asserts that the recorded response is an error response
// ({"error": {"domain": ..., "code": ...}}) with the status, domain and code.
func RequireErrorInRecorder(t require.TestingT, rr *httptest.ResponseRecorder, wantStatus int, wantDomain, wantCode string) {
	helper(t)
	requireErrorBody(t, rr.Code, rr.Header(), rr.Body, wantStatus, wantDomain, wantCode)
}

// RequireErrorInResponse is RequireErrorInRecorder for a client-side response.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantStatus int, wantDomain, wantCode string) {
	helper(t)
	requireErrorBody(t, resp.StatusCode, resp.Header, resp.Body, wantStatus, wantDomain, wantCode)
}

func requireErrorBody(
	t require.TestingT, status int, header http.Header, body io.Reader, wantStatus int, wantDomain, wantCode string,
) {
	helper(t)
	require.Equal(t, wantStatus, status)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp struct {
		Error struct {
			Domain string `json:"domain"`
			Code   string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.Equal(t, wantDomain, errResp.Error.Domain)
	require.Equal(t, wantCode, errResp.Error.Code)
}

// RequireStringJSONInResponse asserts that the response has a JSON body equal to want byte by byte.
func RequireStringJSONInResponse(t require.TestingT, resp *http.Response, want string) {
	helper(t)
	require.Equal(t, contentTypeAppJSON, resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, string(body))
}

// RequireJSONInRecorder asserts that the recorded JSON body, decoded into dest, equals want.
func RequireJSONInRecorder(t require.TestingT, rr *httptest.ResponseRecorder, want, dest interface{}) {
	helper(t)
	require.Equal(t, contentTypeAppJSON, rr.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dest))
	require.Equal(t, want, dest)
}
