/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/service"
)

// APIRoute registers API handlers in the router.
type APIRoute = func(router chi.Router)

// HTTPRequestMetricsOpts configures the incoming request metrics of the server.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels

	GetUserAgentType middleware.UserAgentTypeGetterFunc
	// GetRoutePattern defaults to GetChiRoutePattern.
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// Opts holds optional parameters of HTTPServer.
type Opts struct {
	APIRoutes []APIRoute
	// RootMiddlewares run after the built-in ones.
	RootMiddlewares []func(http.Handler) http.Handler
	// ErrorDomain is put into every error response produced by the server itself.
	ErrorDomain string
	// HealthCheck backs the /healthz endpoint.
	HealthCheck HealthCheckContext
	// MetricsHandler serves /metrics (promhttp.Handler by default).
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// GetClientKey identifies the client for rate limiting (middleware.GetClientIP by default).
	GetClientKey middleware.ClientKeyGetterFunc
	// Listener is used instead of listening on Config.Address.
	Listener net.Listener
}

// HTTPServer is a service.Unit serving the chi router built by NewRouter.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener   net.Listener
	port       atomic.Int32
	serveDone  atomic.Value // chan struct{}
	reqMetrics *middleware.HTTPRequestPrometheusMetrics
}

var (
	_ service.Unit              = (*HTTPServer)(nil)
	_ service.MetricsRegisterer = (*HTTPServer)(nil)
)

// New creates an HTTPServer. A nil logger disables logging.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam: opts is passed once
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	reqMetrics := middleware.NewHTTPRequestPrometheusMetricsWithOpts(middleware.HTTPRequestPrometheusMetricsOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})
	router := NewRouter(cfg, logger, opts, reqMetrics)
	return &HTTPServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		reqMetrics:      reqMetrics,
	}
}

// Start serves requests until Stop is called. Listen and serve errors are sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting API HTTP server...")

	if err := s.listen(); err != nil {
		logger.Error("API HTTP server failed to listen", log.Error(err))
		fatalError <- err
		return
	}
	err := s.HTTPServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("API HTTP server closed")
		return
	}
	logger.Error("API HTTP server failed", log.Error(err))
	fatalError <- err
}

func (s *HTTPServer) listen() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			return err
		}
		s.listener = ln
	}
	tcpAddr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("listener address %q is not a TCP address", s.listener.Addr())
	}
	s.port.Store(int32(tcpAddr.Port)) //nolint:gosec // TCP port fits into int32
	return nil
}

// Stop shuts the server down, waiting up to ShutdownTimeout for active requests when gracefully is set.
// It returns after Start has exited.
func (s *HTTPServer) Stop(gracefully bool) error {
	defer func() {
		if done, ok := s.serveDone.Load().(chan struct{}); ok {
			<-done
		}
	}()

	if !gracefully {
		s.Logger.Info("closing API HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("failed to close API HTTP server", log.Error(err))
			return err
		}
		return nil
	}

	s.Logger.Info("shutting down API HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("failed to shut down API HTTP server", log.Error(err))
		return err
	}
	s.Logger.Info("API HTTP server shut down")
	return nil
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) MustRegisterMetrics() {
	s.reqMetrics.MustRegister()
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) UnregisterMetrics() {
	s.reqMetrics.Unregister()
}

// GetPort returns the port the server listens on, or 0 before it has started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
