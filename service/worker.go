/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/acronis/go-resolvekit/log"
)

// ErrPeriodicWorkerStop ends the loop of PeriodicWorker when returned by the underlying worker.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// Worker does some (usually long-running) work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }

// PeriodicWorkerOpts are optional parameters of PeriodicWorker.
type PeriodicWorkerOpts struct {
	// InitialDelay is the delay before the first run.
	InitialDelay time.Duration
	// NextDelay, if set, computes the delay after each run from its error.
	NextDelay func(err error) time.Duration
}

// PeriodicWorker runs the underlying worker over and over with a delay between runs.
// Errors of single runs are logged and don't stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
	opts     PeriodicWorkerOpts
}

// NewPeriodicWorker creates a PeriodicWorker with the constant interval.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a PeriodicWorker with custom options.
func NewPeriodicWorkerWithOpts(worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger, opts: opts}
}

// Run loops until ctx is done or the worker returns ErrPeriodicWorkerStop.
// A panic of the worker is logged with the stack and re-raised.
func (pw *PeriodicWorker) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", debug.Stack()))
			panic(p)
		}
		pw.logger.Info("periodic worker stopped")
	}()

	pw.logger.Infof("running periodic worker (initialDelay=%s, interval=%s)...", pw.opts.InitialDelay, pw.interval)

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		runErr := pw.worker.Run(ctx)
		if errors.Is(runErr, ErrPeriodicWorkerStop) {
			return nil
		}
		if runErr != nil {
			pw.logger.Error("periodic worker run failed", log.Error(runErr))
		}

		delay := pw.interval
		if pw.opts.NextDelay != nil {
			delay = pw.opts.NextDelay(runErr)
		}
		timer.Reset(delay)
	}
}
