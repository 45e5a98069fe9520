/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command resolverd serves users by their identifiers from a rate-limited, cached origin store.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/acronis/go-resolvekit/config"
	"github.com/acronis/go-resolvekit/httpclient"
	"github.com/acronis/go-resolvekit/httpserver"
	"github.com/acronis/go-resolvekit/internal/libinfo"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/profserver"
	"github.com/acronis/go-resolvekit/resolver"
	"github.com/acronis/go-resolvekit/restapi"
	"github.com/acronis/go-resolvekit/service"
	"github.com/acronis/go-resolvekit/userapi"
	"github.com/acronis/go-resolvekit/userstore"
)

const (
	envVarsPrefix    = "RESOLVEKIT"
	metricsNamespace = "resolvekit"
	openStoreTimeout = 30 * time.Second
)

type appConfig struct {
	Log        *log.Config
	Origin     *userstore.Config
	Resolver   *resolver.Config
	Server     *httpserver.Config
	Profserver *profserver.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:        log.NewConfig(),
		Origin:     userstore.NewConfig(),
		Resolver:   resolver.NewConfig(),
		Server:     httpserver.NewConfig(),
		Profserver: profserver.NewConfig(),
	}
}

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.StringP("config", "c", "", "path to the YAML configuration file")
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(libinfo.GetVersion())
		return nil
	}

	cfg := newAppConfig()
	if err := loadConfig(*cfgPath, cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	if err := runService(cfg, logger); err != nil {
		logger.Error("service stopped with error", log.Error(err))
		return err
	}
	return nil
}

func loadConfig(path string, cfg *appConfig) error {
	cfgs := []config.Config{cfg.Log, cfg.Origin, cfg.Resolver, cfg.Server, cfg.Profserver}
	loader := config.NewDefaultLoader(envVarsPrefix)
	if path == "" {
		// Defaults and environment variables only.
		return loader.LoadFromReader(strings.NewReader(""), config.DataTypeYAML, cfgs[0], cfgs[1:]...)
	}
	return loader.LoadFromFile(path, config.DataTypeYAML, cfgs[0], cfgs[1:]...)
}

func runService(cfg *appConfig, logger log.FieldLogger) error {
	logger.Info("starting resolverd", log.String("version", libinfo.GetVersion()),
		log.String("origin_type", string(cfg.Origin.Type)))

	constLabels := libinfo.AddPrometheusVersionLabel(prometheus.Labels{})

	httpClientMetrics := httpclient.NewPrometheusMetricsWithOpts(httpclient.PrometheusMetricsOpts{
		Namespace: metricsNamespace, ConstLabels: constLabels,
	})
	httpClientMetrics.MustRegister()
	defer httpClientMetrics.Unregister()
	restapi.MustRegisterErrorMetrics(metricsNamespace, constLabels)
	defer restapi.UnregisterErrorMetrics()

	openCtx, cancel := context.WithTimeout(context.Background(), openStoreTimeout)
	store, err := userstore.Open(openCtx, cfg.Origin, userstore.OpenOpts{
		Logger:            logger.With(log.String("component", "origin")),
		HTTPClientMetrics: httpClientMetrics,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("open origin store: %w", err)
	}

	limiter, err := cfg.Resolver.NewLimiter()
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create rate limiter: %w", err)
	}
	res, err := resolver.New(limiter, userstore.FetchFunc(store), cfg.Resolver, resolver.Opts{
		Logger: logger.With(log.String("component", "resolver")),
		Metrics: resolver.NewPrometheusMetricsWithOpts(resolver.PrometheusMetricsOpts{
			Namespace: metricsNamespace, ConstLabels: constLabels,
		}),
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create resolver: %w", err)
	}

	handler := userapi.New(res, store)
	units := []service.Unit{
		res,
		httpserver.New(cfg.Server, logger, httpserver.Opts{
			ErrorDomain: userapi.ErrorDomain,
			APIRoutes:   []httpserver.APIRoute{handler.Routes},
			HealthCheck: handler.HealthCheck,
			HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
				Namespace: metricsNamespace, ConstLabels: constLabels,
			},
		}),
	}
	if cfg.Profserver.Enabled {
		units = append(units, profserver.New(cfg.Profserver, logger))
	}

	composite := service.NewCompositeUnit(units...)
	serviceErr := service.New(logger, composite).Start()

	var closing errgroup.Group
	if serviceErr != nil {
		// Units are not stopped by the service after a fatal error.
		closing.Go(func() error { return composite.Stop(false) })
	}
	closing.Go(store.Close)
	if err = closing.Wait(); err != nil {
		logger.Error("failed to release resources", log.Error(err))
	}
	return serviceErr
}
