package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/common/otel"
	"sentinel.app/relay/core/config"
	"sentinel.app/relay/internal/app"
	"sentinel.app/relay/internal/http/handler"
	"sentinel.app/relay/internal/http/middleware"
	httprouter "sentinel.app/relay/internal/http/router"
	"sentinel.app/relay/internal/service"
	"sentinel.app/relay/internal/service/identity"
	"sentinel.app/relay/internal/service/ratelimit"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "sentinel server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	application, err := app.Build(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	authenticator, err := newAuthenticator(ctx, cfg.A2A)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize a2a authentication", "error", err)
		os.Exit(1)
	}

	limiter := newLimiter(cfg.A2A, application)

	services := service.NewServices(service.ServicesConfig{
		Turns:        application.Engine,
		SkillTimeout: cfg.Engine.TurnTimeout,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, authenticator, limiter)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A skill call may run a full turn.
		WriteTimeout: cfg.Engine.TurnTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sweeper, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		g.Go(func() error {
			sweepLimiter(gctx, sweeper, cfg.A2A.RateWindow)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "server stopped with error", "error", err)
	}

	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

// newAuthenticator accepts Google identity tokens when an audience is set and
// HS256 tokens when a shared secret is set. Google is tried first.
func newAuthenticator(ctx context.Context, cfg config.A2AConfig) (*identity.Authenticator, error) {
	var chain identity.Chain
	if cfg.Audience != "" {
		google, err := identity.NewGoogleVerifier(ctx, cfg.Audience)
		if err != nil {
			return nil, err
		}
		chain = append(chain, google)
	}
	if cfg.JWTSecret != "" {
		hmac, err := identity.NewHMACVerifier(cfg.JWTSecret, cfg.Audience)
		if err != nil {
			return nil, err
		}
		chain = append(chain, hmac)
	}
	return identity.NewAuthenticator(chain, identity.NewAllowList(cfg.AllowedCallers)), nil
}

func newLimiter(cfg config.A2AConfig, application *app.App) ratelimit.Limiter {
	rl := ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow}
	if cfg.RateBackend == config.BackendRedis {
		slog.Info("rate limiter backend", "backend", "redis", "limit", cfg.RateLimit, "window", cfg.RateWindow)
		return ratelimit.NewRedisLimiter(application.Redis, "", application.IDs, rl)
	}
	slog.Info("rate limiter backend", "backend", "memory", "limit", cfg.RateLimit, "window", cfg.RateWindow)
	return ratelimit.NewMemoryLimiter(rl)
}

func sweepLimiter(ctx context.Context, limiter *ratelimit.MemoryLimiter, window time.Duration) {
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

func setupRouter(cfg config.Config, services *service.Services, auth middleware.Authenticator, limiter ratelimit.Limiter) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	authSchemes := []string{}
	if cfg.A2A.Audience != "" {
		authSchemes = append(authSchemes, "google_identity_token")
	}
	if cfg.A2A.JWTSecret != "" {
		authSchemes = append(authSchemes, "bearer_jwt")
	}

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		Agent: handler.AgentInfo{
			Name:          "sentinel-log-triage",
			Description:   "Reads service logs, answers questions about them and files issues for the problems it finds.",
			Version:       cfg.OTel.ServiceVersion,
			PublicURL:     cfg.A2A.PublicURL,
			AuthSchemes:   authSchemes,
			RateLimit:     cfg.A2A.RateLimit,
			RateWindowSec: int(cfg.A2A.RateWindow / time.Second),
			Checks: map[string]bool{
				"llm":           cfg.LLM.Enabled(),
				"project_id":    cfg.Logs.ProjectID != "",
				"issue_tracker": cfg.Tracker.GitHubEnabled() || cfg.Tracker.GitLabEnabled(),
			},
		},
		Authenticator: auth,
		Limiter:       limiter,
	})

	return router
}

const banner = `
 ____  _____ _   _ _____ ___ _   _ _____ _       ____  _____ ______     _______ ____  
/ ___|| ____| \ | |_   _|_ _| \ | | ____| |     / ___|| ____|  _ \ \   / / ____|  _ \ 
\___ \|  _| |  \| | | |  | ||  \| |  _| | |     \___ \|  _| | |_) \ \ / /|  _| | |_) |
 ___) | |___| |\  | | |  | || |\  | |___| |___   ___) | |___|  _ < \ V / | |___|  _ < 
|____/|_____|_| \_| |_| |___|_| \_|_____|_____| |____/|_____|_| \_\ \_/  |_____|_| \_\
`
