package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryLimiter keeps request timestamps per key in process memory.
type MemoryLimiter struct {
	cfg Config

	mu       sync.Mutex
	requests map[string][]time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:      cfg.withDefaults(),
		requests: make(map[string][]time.Time),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) error {
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.requests[key], now.Add(-l.cfg.Window))
	if len(recent) >= l.cfg.Limit {
		l.requests[key] = recent
		slog.WarnContext(ctx, "rate limit exceeded",
			"caller", key,
			"requests", len(recent),
			"limit", l.cfg.Limit,
			"window_s", int(l.cfg.Window.Seconds()))
		return &LimitError{
			Limit:      l.cfg.Limit,
			Window:     l.cfg.Window,
			RetryAfter: recent[0].Add(l.cfg.Window).Sub(now),
		}
	}

	l.requests[key] = append(recent, now)
	return nil
}

// Sweep drops keys with no request inside the window.
func (l *MemoryLimiter) Sweep() {
	cutoff := l.cfg.Now().Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, times := range l.requests {
		if recent := prune(times, cutoff); len(recent) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = recent
		}
	}
}

// prune drops timestamps at or before cutoff. times is in ascending order.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

func (l *MemoryLimiter) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}
