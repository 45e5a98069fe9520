/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fetchpool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-resolvekit/log"
)

// DefaultWorkers is the default number of fetches that may be in progress concurrently.
const DefaultWorkers = 8

// FetchFunc fetches a value for the key from the origin.
// It should return ErrNotFound (or an error wrapping it) if the origin has no value for the key.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Opts represents options for Coordinator.
type Opts struct {
	// Workers is the maximum number of fetches in progress. DefaultWorkers is used if it's 0.
	Workers int

	// FetchTimeout limits the duration of a single fetch. Zero means no limit.
	// Callers may impose their own deadlines via the context passed to Resolve.
	FetchTimeout time.Duration

	// Logger is used for logging failed and panicked fetches. Logging is disabled if it's nil.
	Logger log.FieldLogger

	// MetricsCollector is used to collect metrics. Metrics are disabled if it's nil.
	MetricsCollector MetricsCollector
}

// PoolStats contains coordinator statistics.
type PoolStats struct {
	Workers   int    `json:"workers"`
	Active    int    `json:"active"`
	Queued    int    `json:"queued"`
	InFlight  int    `json:"inFlight"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// Coordinator resolves keys via a bounded number of concurrent fetches,
// ensuring at most one in-flight fetch per key.
type Coordinator[K comparable, V any] struct {
	fetch        FetchFunc[K, V]
	workers      int
	fetchTimeout time.Duration
	logger       log.FieldLogger
	metrics      MetricsCollector

	pending *pendingGroup[K, V]

	mu     sync.Mutex
	queue  *list.List // FIFO of keys waiting for a worker
	active int

	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a new Coordinator that uses the given function to fetch values.
func New[K comparable, V any](fetch FetchFunc[K, V], opts Opts) (*Coordinator[K, V], error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function must not be nil")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FetchTimeout < 0 {
		return nil, fmt.Errorf("fetch timeout must not be negative, got %s", opts.FetchTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	return &Coordinator[K, V]{
		fetch:        fetch,
		workers:      opts.Workers,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
		metrics:      opts.MetricsCollector,
		pending:      newPendingGroup[K, V](),
		queue:        list.New(),
	}, nil
}

// Resolve returns the value for the key.
//
// If a fetch for the key is already in flight, the caller joins it and no new work is scheduled.
// Otherwise, a new fetch is queued. All callers that joined the same fetch receive the same outcome:
// the value, ErrNotFound, or *FetchError.
// If ctx is done before the fetch settles, Resolve returns ctx.Err(),
// but the fetch itself goes on for the rest of the subscribers.
func (c *Coordinator[K, V]) Resolve(ctx context.Context, key K) (V, error) {
	sub, created := c.pending.subscribe(key)
	if created {
		c.enqueue(key)
	} else {
		c.metrics.IncDeduplicated()
	}

	select {
	case res := <-sub:
		return res.val, res.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Stats returns a snapshot of the coordinator statistics.
func (c *Coordinator[K, V]) Stats() PoolStats {
	c.mu.Lock()
	active, queued := c.active, c.queue.Len()
	c.mu.Unlock()

	return PoolStats{
		Workers:   c.workers,
		Active:    active,
		Queued:    queued,
		InFlight:  c.pending.len(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
	}
}

func (c *Coordinator[K, V]) enqueue(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.PushBack(key)
	c.metrics.SetQueueLength(c.queue.Len())
	c.dispatchLocked()
}

// dispatchLocked starts a new worker if there is queued work and a free slot.
// Must be called with c.mu held.
func (c *Coordinator[K, V]) dispatchLocked() {
	if c.queue.Len() == 0 || c.active >= c.workers {
		return
	}
	c.active++
	c.metrics.SetActiveWorkers(c.active)
	go c.work()
}

// work processes queued keys one by one until the queue is empty.
// Taking the head and releasing the slot happen under c.mu, so no key is dispatched twice
// and no queued key is left without a worker.
func (c *Coordinator[K, V]) work() {
	exitedNormally := false
	defer func() {
		if exitedNormally {
			return
		}
		// The fetch function called runtime.Goexit; the subscribers are already settled.
		c.mu.Lock()
		c.active--
		c.metrics.SetActiveWorkers(c.active)
		c.dispatchLocked()
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		front := c.queue.Front()
		if front == nil {
			c.active--
			c.metrics.SetActiveWorkers(c.active)
			c.mu.Unlock()
			exitedNormally = true
			return
		}
		key := c.queue.Remove(front).(K)
		c.metrics.SetQueueLength(c.queue.Len())
		c.mu.Unlock()

		c.process(key)
	}
}

// process runs the fetch for the key and settles its pending fetch whatever happens inside.
func (c *Coordinator[K, V]) process(key K) {
	var res outcome[V]
	normalReturn := false
	startTime := time.Now()

	defer func() {
		if !normalReturn {
			if p := recover(); p != nil {
				res.err = &FetchError{Key: key, Err: newPanicError(p)}
				c.logger.Error("panic while fetching value", log.String("key", fmt.Sprint(key)), log.Error(res.err))
			} else {
				res.err = &FetchError{Key: key, Err: ErrGoexit}
			}
		}
		c.observe(key, res.err, time.Since(startTime))
		c.pending.settle(key, res)
	}()

	ctx := context.Background()
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	val, err := c.fetch(ctx, key)
	res = outcome[V]{val: val, err: normalizeFetchError(key, err)}
	normalReturn = true
}

func (c *Coordinator[K, V]) observe(key K, err error, elapsed time.Duration) {
	switch {
	case err == nil:
		c.completed.Inc()
		c.metrics.ObserveFetch(FetchResultOK, elapsed)
	case errors.Is(err, ErrNotFound) && !errors.Is(err, ErrFetch):
		c.completed.Inc()
		c.metrics.ObserveFetch(FetchResultNotFound, elapsed)
	default:
		c.failed.Inc()
		c.metrics.ObserveFetch(FetchResultError, elapsed)
		c.logger.Warn("fetch failed", log.String("key", fmt.Sprint(key)), log.Error(err), log.DurationIn(elapsed, time.Millisecond))
	}
}

func normalizeFetchError(key interface{}, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return &FetchError{Key: key, Err: err}
}
