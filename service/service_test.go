/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/log/logtest"
)

func TestService_ContextCanceled(t *testing.T) {
	unit := newBlockingUnit()
	logRecorder := logtest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(logRecorder, unit).StartContext(ctx) }()
	require.Eventually(t, func() bool { return unit.started.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	require.True(t, unit.graceful.Load())
	require.EqualValues(t, 1, unit.registered.Load())
	require.EqualValues(t, 1, unit.unregistered.Load())
	_, found := logRecorder.FindEntry("context is canceled, service will be stopped")
	require.True(t, found)
}

func TestService_Signal(t *testing.T) {
	require.Equal(t, []os.Signal{syscall.SIGINT, syscall.SIGTERM}, New(logtest.NewRecorder(), newBlockingUnit()).signals)

	unit := newBlockingUnit()
	svc := NewWithOpts(logtest.NewRecorder(), unit, Opts{ShutdownSignals: []os.Signal{syscall.SIGUSR1}})
	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	require.Eventually(t, func() bool { return unit.started.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service was not stopped by the signal")
	}
	require.EqualValues(t, 1, unit.stopCalls.Load())
	require.True(t, unit.graceful.Load())
}

func TestService_FatalError(t *testing.T) {
	unit := newBlockingUnit()
	unit.startErr = errors.New("bind failed")
	err := New(logtest.NewRecorder(), unit).Start()
	require.ErrorIs(t, err, unit.startErr)
	require.EqualError(t, err, "fatal error: bind failed")
	require.Zero(t, unit.stopCalls.Load())
}

func TestService_StopError(t *testing.T) {
	unit := newBlockingUnit()
	unit.stopErr = errors.New("drain timeout")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(logtest.NewRecorder(), unit).StartContext(ctx)
	require.ErrorIs(t, err, unit.stopErr)
}
