/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acronis/go-resolvekit/fetchpool"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/lrucache"
	"github.com/acronis/go-resolvekit/service"
)

// Limiter decides whether a request of the client should be admitted.
// It's satisfied by the rate limiters of the module, see Config.NewLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Source tells where a resolved value came from.
type Source string

// Sources of resolved values.
const (
	SourceCache  Source = "cache"
	SourceOrigin Source = "origin"
)

// Result is a successfully resolved value with its provenance.
type Result[V any] struct {
	Value  V
	Source Source
}

// Stats represents resolver statistics.
type Stats struct {
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	Size              int     `json:"size"`
	Requests          uint64  `json:"requests"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

// Opts represents options for Resolver.
type Opts struct {
	// Logger is used for logging. Logging is disabled if it's nil.
	Logger log.FieldLogger

	// Metrics is used to collect Prometheus metrics. Metrics are disabled if it's nil.
	Metrics *PrometheusMetrics
}

// Resolver resolves entities by their numeric identifiers.
// It admits the request with the rate limiter, looks the entity up in the cache
// and fetches it from the origin on a miss, deduplicating concurrent fetches of the same identifier.
type Resolver[V any] struct {
	limiter     Limiter
	cache       *lrucache.LRUCache[int64, V]
	coordinator *fetchpool.Coordinator[int64, V]
	logger      log.FieldLogger
	metrics     *PrometheusMetrics

	sweepUnit *service.WorkerUnit
	startOnce sync.Once
	started   chan struct{}
}

var (
	_ service.Unit              = (*Resolver[struct{}])(nil)
	_ service.MetricsRegisterer = (*Resolver[struct{}])(nil)
)

// New creates a new Resolver.
// The fetch function is called for identifiers missing in the cache, see fetchpool.FetchFunc for its contract.
// The periodic sweep of expired entries does not run until Start is called (usually by service.Service);
// before that, expired entries are only dropped when they are read.
func New[V any](limiter Limiter, fetch fetchpool.FetchFunc[int64, V], cfg *Config, opts Opts) (*Resolver[V], error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter must not be nil")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	var cacheMetrics lrucache.MetricsCollector
	var fetchMetrics fetchpool.MetricsCollector
	if opts.Metrics != nil {
		cacheMetrics = opts.Metrics.Cache
		fetchMetrics = opts.Metrics.Fetch
	}

	cache, err := lrucache.NewWithOpts[int64, V](cfg.Cache.MaxEntries, cacheMetrics, lrucache.Options{
		DefaultTTL: time.Duration(cfg.Cache.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("new cache: %w", err)
	}
	coordinator, err := fetchpool.New[int64, V](fetch, fetchpool.Opts{
		Workers:          cfg.Workers,
		FetchTimeout:     time.Duration(cfg.FetchTimeout),
		Logger:           logger,
		MetricsCollector: fetchMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("new fetch coordinator: %w", err)
	}

	cleanupInterval := time.Duration(cfg.Cache.CleanupInterval)
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCacheCleanupInterval
	}
	sweeper := service.WorkerFunc(func(_ context.Context) error {
		if n := cache.DeleteExpired(); n > 0 {
			logger.Debug("expired cache entries removed", log.Int("count", n))
		}
		return nil
	})

	return &Resolver[V]{
		limiter:     limiter,
		cache:       cache,
		coordinator: coordinator,
		logger:      logger,
		metrics:     opts.Metrics,
		sweepUnit: service.NewWorkerUnit(service.NewPeriodicWorkerWithOpts(
			sweeper, cleanupInterval, logger.With(log.String("worker", "cache_sweeper")),
			service.PeriodicWorkerOpts{InitialDelay: cleanupInterval},
		)),
		started: make(chan struct{}),
	}, nil
}

// ParseID parses an entity identifier. Only base-10 integers are accepted.
func ParseID(rawID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: identifier %q is not an integer", ErrInvalidInput, rawID)
	}
	return id, nil
}

// ResolveEntity resolves the entity with the given identifier on behalf of the client.
//
// It returns an error matching ErrInvalidInput for a malformed identifier (nothing else is done in this case),
// *RateLimitedError (matching ErrRateLimited) if the client is not admitted (cache and origin are not touched),
// ErrNotFound if the origin has no such entity, or an error matching ErrFetch if the origin fetch has failed.
// If ctx is done while waiting for the fetch, ctx.Err() is returned but the fetch itself goes on.
// Nothing except successfully fetched values is cached.
func (r *Resolver[V]) ResolveEntity(ctx context.Context, rawID string, clientKey string) (Result[V], error) {
	id, err := ParseID(rawID)
	if err != nil {
		r.observe(OutcomeInvalidInput)
		return Result[V]{}, err
	}

	startTime := time.Now()
	defer func() {
		r.cache.RecordResponseTime(time.Since(startTime))
	}()

	allow, retryAfter, err := r.limiter.Allow(ctx, clientKey)
	if err != nil {
		r.observe(OutcomeError)
		return Result[V]{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !allow {
		r.observe(OutcomeRateLimited)
		return Result[V]{}, &RateLimitedError{ClientKey: clientKey, RetryAfter: retryAfter}
	}

	if value, ok := r.cache.Get(id); ok {
		r.cache.RecordHit()
		r.observe(OutcomeCache)
		return Result[V]{Value: value, Source: SourceCache}, nil
	}
	r.cache.RecordMiss()

	value, err := r.coordinator.Resolve(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrFetch):
			r.observe(OutcomeError)
		case errors.Is(err, ErrNotFound):
			r.observe(OutcomeNotFound)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			r.observe(OutcomeCanceled)
		default:
			r.observe(OutcomeError)
		}
		return Result[V]{}, err
	}
	r.cache.SetIfAbsent(id, value)
	r.observe(OutcomeOrigin)
	return Result[V]{Value: value, Source: SourceOrigin}, nil
}

// Remember caches a value created outside the resolver (e.g. a just created entity).
// An unexpired cached value is never overwritten. It returns true if the value was cached.
func (r *Resolver[V]) Remember(id int64, value V) bool {
	return r.cache.SetIfAbsent(id, value)
}

// Delete evicts the entity with the given identifier from the cache.
func (r *Resolver[V]) Delete(id int64) bool {
	return r.cache.Remove(id)
}

// Clear wipes the cache and resets the statistics.
func (r *Resolver[V]) Clear() {
	r.cache.Purge()
	r.logger.Info("cache cleared")
}

// Stats returns cache statistics.
func (r *Resolver[V]) Stats() Stats {
	cs := r.cache.Stats()
	return Stats{
		Hits:              cs.Hits,
		Misses:            cs.Misses,
		Size:              cs.Size,
		Requests:          cs.Requests,
		AvgResponseTimeMs: float64(cs.AvgResponseTime()) / float64(time.Millisecond),
	}
}

// PoolStats returns statistics of the origin fetches.
func (r *Resolver[V]) PoolStats() fetchpool.PoolStats {
	return r.coordinator.Stats()
}

// Start runs the periodic sweep of expired cache entries. It blocks until Stop is called.
// Implements service.Unit interface.
func (r *Resolver[V]) Start(fatalError chan<- error) {
	r.startOnce.Do(func() {
		close(r.started)
		r.sweepUnit.Start(fatalError)
	})
}

// Stop stops the periodic sweep. If gracefully is true, it waits for the sweep to finish.
// Implements service.Unit interface.
func (r *Resolver[V]) Stop(gracefully bool) error {
	select {
	case <-r.started:
		return r.sweepUnit.Stop(gracefully)
	default:
		return nil
	}
}

// Close stops the periodic sweep and waits for it to finish.
func (r *Resolver[V]) Close() error {
	return r.Stop(true)
}

// MustRegisterMetrics registers resolver metrics in Prometheus.
// Implements service.MetricsRegisterer interface.
func (r *Resolver[V]) MustRegisterMetrics() {
	if r.metrics != nil {
		r.metrics.MustRegister()
	}
}

// UnregisterMetrics unregisters resolver metrics in Prometheus.
// Implements service.MetricsRegisterer interface.
func (r *Resolver[V]) UnregisterMetrics() {
	if r.metrics != nil {
		r.metrics.Unregister()
	}
}

func (r *Resolver[V]) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.incResolutions(outcome)
	}
}
