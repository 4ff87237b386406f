package luma

import (
	"context"
	"sync"
	"time"

	"calsync/internal/metrics"
)

// WindowLimiter admits at most budget calls per fixed window. The window
// opens on the first call after the previous one elapsed; once the budget is
// spent, callers sleep until the window resets.
type WindowLimiter struct {
	mu     sync.Mutex
	budget int
	window time.Duration
	start  time.Time
	count  int
}

// NewWindowLimiter returns a limiter; a non-positive budget disables limiting.
func NewWindowLimiter(budget int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{budget: budget, window: window}
}

// Wait blocks until a request slot is available or ctx is done.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	if l.budget <= 0 {
		return ctx.Err()
	}

	for {
		wait, ok := l.reserve(time.Now())
		if ok {
			return nil
		}

		metrics.RateLimitWaits.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a slot if one is free, otherwise reports how long until the
// window resets. Check and increment share the critical section.
func (l *WindowLimiter) reserve(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.start.IsZero() || now.Sub(l.start) >= l.window {
		l.start = now
		l.count = 0
	}

	if l.count < l.budget {
		l.count++
		return 0, true
	}

	return l.window - now.Sub(l.start), false
}
