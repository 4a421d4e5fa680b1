package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outgoing requests. Wait blocks until the next request is
// allowed to proceed or the context is cancelled.
type Limiter interface {
	Wait(ctx context.Context) error
}

// IntervalLimiter enforces a minimum interval between consecutive requests
// across all goroutines sharing it. An interval of zero disables the delay.
type IntervalLimiter struct {
	interval   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{interval: interval}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastAction)
	if elapsed < l.interval {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}
