/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-resolvekit/log"
)

// Opts are optional parameters of Service.
type Opts struct {
	// ShutdownSignals stop the service gracefully. SIGINT and SIGTERM are used if empty.
	ShutdownSignals []os.Signal
}

// Service runs a unit until a shutdown signal, a fatal error or cancellation of the context.
type Service struct {
	unit    Unit
	logger  log.FieldLogger
	signals []os.Signal
}

// New creates a Service stopped by SIGINT and SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{})
}

// NewWithOpts creates a Service with custom options.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	signals := opts.ShutdownSignals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return &Service{unit: unit, logger: logger, signals: signals}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the unit in a separate goroutine and blocks until the service ends.
// On a shutdown signal or cancellation of ctx the unit is stopped gracefully.
// On a fatal error of the unit the error is returned and stopping the unit is up to the caller.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	sigCtx, stopNotify := signal.NotifyContext(ctx, s.signals...)
	defer stopNotify()

	fatalErr := make(chan error, 1)
	go s.unit.Start(fatalErr)

	select {
	case err := <-fatalErr:
		s.logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case <-sigCtx.Done():
	}

	if ctx.Err() != nil {
		s.logger.Info("context is canceled, service will be stopped")
	} else {
		s.logger.Info("shutdown signal received, service will be stopped")
	}
	if err := s.unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	return nil
}
