package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultLimit  = 100
	DefaultWindow = 60 * time.Second
)

var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError reports a rejected request. It matches ErrRateLimited.
type LimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded: %d requests per %ds", e.Limit, int(e.Window.Seconds()))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Limiter admits at most Limit requests per key in any trailing Window.
// Rejected requests are not recorded.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

type Config struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
