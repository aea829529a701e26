package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/common/otel"
	"sentinel.app/relay/core/config"
	"sentinel.app/relay/internal/app"
	"sentinel.app/relay/internal/queue"
	"sentinel.app/relay/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "transcript worker starting",
		"env", cfg.Env,
		"stream", cfg.Redis.TranscriptStream,
		"consumer_group", cfg.Redis.TranscriptGroup,
		"consumer_name", cfg.Redis.Consumer,
		"dir", cfg.Transcript.Dir)

	redisClient, err := app.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:    cfg.Redis.TranscriptStream,
		Group:     cfg.Redis.TranscriptGroup,
		Consumer:  cfg.Redis.Consumer,
		DLQStream: cfg.Redis.TranscriptDLQ,
		BatchSize: 50,
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	archiver, err := worker.NewFileArchiver(cfg.Transcript.Dir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create transcript archiver", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, archiver, worker.Config{MaxAttempts: 3})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Redis.TranscriptStream,
		Group:     cfg.Redis.TranscriptGroup,
		Consumer:  cfg.Redis.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  time.Minute,
		BatchSize: 50,
	}, consumer, w.ProcessMessage)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		reclaimer.Run(gctx)
		return nil
	})

	slog.InfoContext(ctx, "worker initialized and running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "worker stopped with error", "error", err)
	}

	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ____  _____ _   _ _____ ___ _   _ _____ _      __        _____  ____  _  _______ ____  
/ ___|| ____| \ | |_   _|_ _| \ | | ____| |     \ \      / / _ \|  _ \| |/ / ____|  _ \ 
\___ \|  _| |  \| | | |  | ||  \| |  _| | |      \ \ /\ / / | | | |_) | ' /|  _| | |_) |
 ___) | |___| |\  | | |  | || |\  | |___| |___    \ V  V /| |_| |  _ <| . \| |___|  _ < 
|____/|_____|_| \_| |_| |___|_| \_|_____|_____|    \_/\_/  \___/|_| \_\_|\_\_____|_| \_\
`
