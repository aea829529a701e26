package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/queue"
)

// MessageProcessor handles one reclaimed message. Worker.ProcessMessage satisfies it.
type MessageProcessor func(ctx context.Context, msg queue.Message) error

// ClaimClient is the subset of *redis.Client the reclaimer uses.
type ClaimClient interface {
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
}

type RedisReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxPasses bounds how many XAUTOCLAIM pages one cycle walks.
	MaxPasses int
}

// RedisReclaimer takes over transcript messages another consumer read but
// never acknowledged, once they have been idle for MinIdle.
type RedisReclaimer struct {
	client    ClaimClient
	cfg       RedisReclaimerConfig
	consumer  Consumer
	processor MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client ClaimClient, cfg RedisReclaimerConfig, consumer Consumer, processor MessageProcessor) *RedisReclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 10
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run reclaims on every tick until Stop is called or ctx ends.
func (r *RedisReclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker.reclaimer",
	})
	slog.InfoContext(ctx, "reclaimer started", "interval", r.cfg.Interval, "min_idle", r.cfg.MinIdle)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			n, err := r.ReclaimOnce(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
			if n > 0 {
				slog.InfoContext(ctx, "reclaimed stale messages", "count", n)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce walks the pending list once and returns how many messages it claimed.
func (r *RedisReclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	start := "0-0"
	claimed := 0
	for pass := 0; pass < r.cfg.MaxPasses; pass++ {
		messages, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			MinIdle:  r.cfg.MinIdle,
			Start:    start,
			Count:    r.cfg.BatchSize,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("xautoclaim: %w", err)
		}

		for _, raw := range messages {
			claimed++
			r.handle(ctx, raw)
		}

		// "0-0" means the scan wrapped around the pending list.
		if next == "" || next == "0-0" {
			break
		}
		start = next
	}
	return claimed, nil
}

func (r *RedisReclaimer) handle(ctx context.Context, raw redis.XMessage) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(raw.ID),
	})

	msg, err := queue.ParseMessage(raw)
	if err != nil {
		slog.ErrorContext(ctx, "reclaimed message does not parse", "error", err)
		if dlqErr := r.consumer.SendDLQ(ctx, queue.Message{ID: raw.ID, Raw: raw}, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to dead-letter reclaimed message", "error", dlqErr)
		}
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ThreadID: logger.Ptr(msg.Event.ThreadID),
	})
	if err := r.processor(ctx, msg); err != nil {
		// Left pending; the next cycle picks it up again.
		slog.WarnContext(ctx, "reclaimed message failed", "error", err, "attempt", msg.Attempt)
	}
}
