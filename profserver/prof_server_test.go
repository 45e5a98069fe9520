/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/log/logtest"
	"github.com/acronis/go-resolvekit/testutil"
)

func startProfServer(t *testing.T, logger *logtest.Recorder) (*ProfServer, chan error) {
	t.Helper()
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	srv := New(&Config{Enabled: true, Address: addr}, logger)
	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))
	return srv, fatalErr
}

func getStatusAndBody(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestProfServer_ServesPprof(t *testing.T) {
	for _, mode := range []struct {
		name       string
		gracefully bool
	}{{"graceful stop", true}, {"immediate stop", false}} {
		t.Run(mode.name, func(t *testing.T) {
			logRecorder := logtest.NewRecorder()
			srv, fatalErr := startProfServer(t, logRecorder)

			code, body := getStatusAndBody(t, srv.URL+"/debug/pprof/")
			require.Equal(t, http.StatusOK, code)
			require.Contains(t, string(body), "goroutine")

			code, _ = getStatusAndBody(t, srv.URL+"/users/1")
			require.Equal(t, http.StatusNotFound, code)

			require.NoError(t, srv.Stop(mode.gracefully))
			testutil.RequireNoErrorInChannel(t, fatalErr)
			_, closed := logRecorder.FindEntry("profiling HTTP server closed")
			require.True(t, closed)
		})
	}
}

func TestProfServer_AddressInUse(t *testing.T) {
	first, _ := startProfServer(t, logtest.NewRecorder())
	defer func() { require.NoError(t, first.Stop(false)) }()

	second := New(&Config{Enabled: true, Address: first.HTTPServer.Addr}, logtest.NewRecorder())
	fatalErr := make(chan error, 1)
	second.Start(fatalErr)
	require.Error(t, <-fatalErr)
}
