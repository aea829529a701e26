package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemberSource makes unique sorted-set members. Implemented by *id.Generator.
type MemberSource interface {
	NewString() string
}

// RedisLimiter keeps one sorted set per key, scored by request time in
// milliseconds, so every server replica shares the same window.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	members MemberSource
	cfg     Config
}

func NewRedisLimiter(client *redis.Client, prefix string, members MemberSource, cfg Config) *RedisLimiter {
	if prefix == "" {
		prefix = "sentinel:ratelimit:"
	}
	return &RedisLimiter{
		client:  client,
		prefix:  prefix,
		members: members,
		cfg:     cfg.withDefaults(),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	now := l.cfg.Now()
	zkey := l.prefix + key
	member := l.members.NewString()
	cutoff := now.Add(-l.cfg.Window).UnixMilli()

	var card *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, zkey, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, zkey)
		pipe.PExpire(ctx, zkey, l.cfg.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	count := card.Val()
	if count <= int64(l.cfg.Limit) {
		return nil
	}

	// Rejected requests do not count against the window.
	if err := l.client.ZRem(ctx, zkey, member).Err(); err != nil {
		slog.WarnContext(ctx, "failed to remove rejected rate limit entry", "error", err, "caller", key)
	}

	retry := l.cfg.Window
	if oldest, err := l.client.ZRangeWithScores(ctx, zkey, 0, 0).Result(); err == nil && len(oldest) == 1 {
		first := time.UnixMilli(int64(oldest[0].Score))
		retry = first.Add(l.cfg.Window).Sub(now)
	}

	slog.WarnContext(ctx, "rate limit exceeded",
		"caller", key,
		"requests", count-1,
		"limit", l.cfg.Limit,
		"window_s", int(l.cfg.Window.Seconds()))
	return &LimitError{Limit: l.cfg.Limit, Window: l.cfg.Window, RetryAfter: retry}
}
