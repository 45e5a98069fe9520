/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver serves pprof profiles of the running process on a separate listener.
package profserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/service"
)

const (
	readHeaderTimeout = 5 * time.Second

	// Profile requests such as /debug/pprof/profile?seconds=30 may outlive it; they are cut on close.
	gracefulStopTimeout = 5 * time.Second
)

// ProfServer is a service.Unit exposing /debug/pprof/.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	stopped chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New builds the profiling server. It does not start listening.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	logger = logger.With(log.String("server", "profiler"), log.String("address", cfg.Address))
	return &ProfServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           newProfRouter(logger),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		Logger:  logger,
		stopped: make(chan struct{}),
	}
}

func newProfRouter(logger log.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(), middleware.ClientKey())
	r.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{}))
	r.Use(middleware.Recovery("Profiler"))
	r.Mount("/debug", chimiddleware.Profiler())
	return r
}

// Start blocks serving profiles. A listen failure is reported to fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.stopped)

	s.Logger.Info("starting profiling HTTP server...")
	err := s.HTTPServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		s.Logger.Info("profiling HTTP server closed")
		return
	}
	s.Logger.Error("profiling HTTP server error", log.Error(err))
	fatalError <- err
}

// Stop closes the listener. In graceful mode in-flight requests get a few seconds to finish.
func (s *ProfServer) Stop(gracefully bool) error {
	if err := s.shutdown(gracefully); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.stopped
	return nil
}

func (s *ProfServer) shutdown(gracefully bool) error {
	if !gracefully {
		return s.HTTPServer.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulStopTimeout)
	defer cancel()
	err := s.HTTPServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return s.HTTPServer.Close()
	}
	return err
}
