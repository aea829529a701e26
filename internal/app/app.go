// Package app assembles the workflow engine and its backends from configuration.
// The server and the terminal chat share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"sentinel.app/relay/common/id"
	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/core/config"
	"sentinel.app/relay/core/db"
	"sentinel.app/relay/internal/brain"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/queue"
	"sentinel.app/relay/internal/service/issue_tracker"
	"sentinel.app/relay/internal/store"
)

type App struct {
	Engine *brain.Engine
	Redis  *redis.Client // nil unless a component needs Redis
	IDs    *id.Generator

	closers []func() error
}

// Build connects every backend cfg selects and wires the engine.
// Call Close on the result even when only part of the work is used.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	ids, err := id.NewGenerator(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("initializing id generator: %w", err)
	}
	a.IDs = ids

	var backends store.Backends
	if cfg.Checkpoint.Backend == config.BackendPostgres {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, func() error { database.Close(); return nil })
		backends.DB = database
		slog.InfoContext(ctx, "database connected")
	}

	if cfg.NeedsRedis() {
		client, err := ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		backends.Redis = client
	}

	checkpoints, err := store.NewCheckpointStore(ctx, cfg.Checkpoint, backends)
	if err != nil {
		return nil, fmt.Errorf("creating checkpoint store: %w", err)
	}
	slog.InfoContext(ctx, "checkpoint store ready", "backend", cfg.Checkpoint.Backend)

	llmClient, err := llm.New(ctx, llm.Config{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	slog.InfoContext(ctx, "llm client ready", "provider", cfg.LLM.Provider, "model", llmClient.Model())

	var logOpts []option.ClientOption
	if cfg.Logs.CredentialsFile != "" {
		logOpts = append(logOpts, option.WithCredentialsFile(cfg.Logs.CredentialsFile))
	}
	source, err := logquery.NewCloudLoggingSource(ctx, cfg.Logs.ProjectID, logOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloud logging client: %w", err)
	}
	a.closers = append(a.closers, source.Close)

	resolver := logquery.NewResolver(source, logquery.Config{ProjectID: cfg.Logs.ProjectID})

	trackers, err := NewTrackers(cfg.Tracker)
	if err != nil {
		return nil, err
	}

	deps := brain.Deps{
		LLM:         llmClient,
		Logs:        resolver,
		Issues:      trackers,
		CallTimeout: cfg.Engine.CallTimeout,
	}
	graph, err := brain.NewDefaultGraph(deps)
	if err != nil {
		return nil, fmt.Errorf("building workflow graph: %w", err)
	}

	var sink brain.TranscriptSink
	if cfg.Transcript.Enabled {
		sink = queue.NewRedisProducer(a.Redis, cfg.Redis.TranscriptStream)
		slog.InfoContext(ctx, "transcripts enabled", "stream", cfg.Redis.TranscriptStream)
	}

	a.Engine = brain.NewEngine(
		brain.EngineConfig{
			TurnTimeout: cfg.Engine.TurnTimeout,
			DefaultRepo: cfg.Engine.DefaultRepo,
		},
		brain.NewRouter(deps, nil),
		graph,
		checkpoints,
		ids,
		sink,
	)

	ok = true
	return a, nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewTrackers registers a tracker for every provider with a token.
// Filing against an unregistered provider fails with ErrProviderUnavailable.
func NewTrackers(cfg config.TrackerConfig) (*issue_tracker.Registry, error) {
	registry := issue_tracker.NewRegistry(issue_tracker.Provider(cfg.DefaultProvider))

	if cfg.GitHubEnabled() {
		gh, err := issue_tracker.NewGitHubTracker(cfg.GitHubToken, cfg.GitHubBaseURL)
		if err != nil {
			return nil, fmt.Errorf("creating github tracker: %w", err)
		}
		registry.Register(issue_tracker.ProviderGitHub, gh)
	}
	if cfg.GitLabEnabled() {
		gl, err := issue_tracker.NewGitLabTracker(cfg.GitLabToken, cfg.GitLabBaseURL)
		if err != nil {
			return nil, fmt.Errorf("creating gitlab tracker: %w", err)
		}
		registry.Register(issue_tracker.ProviderGitLab, gl)
	}
	return registry, nil
}

func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected")
	return client, nil
}
