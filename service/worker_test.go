/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resolvekit/log/logtest"
)

func TestPeriodicWorker(t *testing.T) {
	t.Run("runs until context is done", func(t *testing.T) {
		var runs atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		worker := NewPeriodicWorker(WorkerFunc(func(context.Context) error {
			if runs.Add(1) == 2 {
				return errors.New("origin unavailable")
			}
			return nil
		}), 5*time.Millisecond, logtest.NewRecorder())

		done := make(chan error, 1)
		go func() { done <- worker.Run(ctx) }()
		require.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)
	})

	t.Run("stop error ends the loop", func(t *testing.T) {
		var runs atomic.Int32
		logRecorder := logtest.NewRecorder()
		worker := NewPeriodicWorkerWithOpts(WorkerFunc(func(context.Context) error {
			if runs.Add(1) == 3 {
				return ErrPeriodicWorkerStop
			}
			return errors.New("sweep failed")
		}), time.Hour, logRecorder, PeriodicWorkerOpts{
			NextDelay: func(err error) time.Duration {
				require.EqualError(t, err, "sweep failed")
				return time.Millisecond
			},
		})
		require.NoError(t, worker.Run(context.Background()))
		require.EqualValues(t, 3, runs.Load())
		require.Len(t, logRecorder.FindEntries(func(e logtest.RecordedEntry) bool {
			return e.Text == "periodic worker run failed"
		}), 2)
	})

	t.Run("initial delay", func(t *testing.T) {
		var runs atomic.Int32
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		worker := NewPeriodicWorkerWithOpts(WorkerFunc(func(context.Context) error {
			runs.Add(1)
			return nil
		}), time.Millisecond, logtest.NewRecorder(), PeriodicWorkerOpts{InitialDelay: time.Hour})
		require.NoError(t, worker.Run(ctx))
		require.Zero(t, runs.Load())
	})

	t.Run("panic is logged and re-raised", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		worker := NewPeriodicWorker(WorkerFunc(func(context.Context) error {
			panic("boom")
		}), time.Millisecond, logRecorder)
		require.PanicsWithValue(t, "boom", func() { _ = worker.Run(context.Background()) })
		entry, found := logRecorder.FindEntry("panic: boom")
		require.True(t, found)
		_, found = entry.FindField("stack")
		require.True(t, found)
	})
}
