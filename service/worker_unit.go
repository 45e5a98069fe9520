/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWorkerUnitStopTimeoutExceeded is returned by WorkerUnit.Stop when the worker hasn't finished in time.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit stop timeout exceeded")

// WorkerUnitOpts are optional parameters of WorkerUnit.
type WorkerUnitOpts struct {
	MetricsRegisterer MetricsRegisterer
	// GracefulStopTimeout bounds the wait in Stop(true). Zero means no limit.
	GracefulStopTimeout time.Duration
}

// WorkerUnit runs a Worker as a Unit. Start blocks until the worker returns.
type WorkerUnit struct {
	worker Worker
	opts   WorkerUnitOpts

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	started   chan struct{}
	done      chan struct{}
}

var (
	_ Unit              = (*WorkerUnit)(nil)
	_ MetricsRegisterer = (*WorkerUnit)(nil)
)

// NewWorkerUnit creates a WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts creates a WorkerUnit with custom options.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker:  worker,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the worker. Only the first call has effect.
func (u *WorkerUnit) Start(fatalErr chan<- error) {
	u.startOnce.Do(func() {
		close(u.started)
		defer close(u.done)
		if err := u.worker.Run(u.ctx); err != nil {
			fatalErr <- err
		}
	})
}

// Stop cancels the worker's context. If gracefully is true, it also waits for the worker to return.
// Stopping a unit that has never been started doesn't wait.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully {
		return nil
	}
	select {
	case <-u.started:
	default:
		return nil
	}
	if u.opts.GracefulStopTimeout == 0 {
		<-u.done
		return nil
	}
	timer := time.NewTimer(u.opts.GracefulStopTimeout)
	defer timer.Stop()
	select {
	case <-u.done:
		return nil
	case <-timer.C:
		return ErrWorkerUnitStopTimeoutExceeded
	}
}

// MustRegisterMetrics implements MetricsRegisterer.
func (u *WorkerUnit) MustRegisterMetrics() {
	if u.opts.MetricsRegisterer != nil {
		u.opts.MetricsRegisterer.MustRegisterMetrics()
	}
}

// UnregisterMetrics implements MetricsRegisterer.
func (u *WorkerUnit) UnregisterMetrics() {
	if u.opts.MetricsRegisterer != nil {
		u.opts.MetricsRegisterer.UnregisterMetrics()
	}
}
