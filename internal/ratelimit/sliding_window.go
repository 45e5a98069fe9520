/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-resolvekit/lrucache"
)

// SlidingWindowLimiter admits at most rate.Count requests in any window of rate.Duration.
type SlidingWindowLimiter struct {
	rate    Rate
	windows *lrucache.LRUCache[string, *slidingwindow.Limiter]
	shared  *slidingwindow.Limiter
	now     func() time.Time
}

// NewSlidingWindowLimiter creates a sliding window limiter.
// Windows are kept per key in an LRU cache holding maxKeys entries.
// With maxKeys == 0 every key shares one window.
func NewSlidingWindowLimiter(rate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	if rate.Count <= 0 || rate.Duration <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d per %s", rate.Count, rate.Duration)
	}
	l := &SlidingWindowLimiter{rate: rate, now: time.Now}
	if maxKeys == 0 {
		l.shared = l.newWindow()
		return l, nil
	}
	windows, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	l.windows = windows
	return l, nil
}

// Allow reports whether one more request for the key fits into its window.
// A rejected request should be retried at the start of the next fixed window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.window(key).Allow() {
		return true, 0, nil
	}
	now := l.now()
	return false, now.Truncate(l.rate.Duration).Add(l.rate.Duration).Sub(now), nil
}

func (l *SlidingWindowLimiter) window(key string) *slidingwindow.Limiter {
	if l.shared != nil {
		return l.shared
	}
	w, _ := l.windows.GetOrAdd(key, l.newWindow)
	return w
}

func (l *SlidingWindowLimiter) newWindow() *slidingwindow.Limiter {
	w, _ := slidingwindow.NewLimiter(l.rate.Duration, int64(l.rate.Count),
		func() (slidingwindow.Window, slidingwindow.StopFunc) { return slidingwindow.NewLocalWindow() })
	return w
}
