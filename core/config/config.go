package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sentinel.app/relay/core/db"
)

type Config struct {
	Env        string
	Port       string
	NodeID     int64
	OTel       OTelConfig
	LLM        LLMConfig
	Logs       LogsConfig
	Tracker    TrackerConfig
	Checkpoint CheckpointConfig
	DB         db.Config
	Redis      RedisConfig
	A2A        A2AConfig
	Engine     EngineConfig
	Transcript TranscriptConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type LLMConfig struct {
	Provider  string // "gemini", "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: for custom endpoints
	Model     string
	MaxTokens int
}

type LogsConfig struct {
	ProjectID       string
	CredentialsFile string // Optional: service account key, default credentials otherwise
}

type TrackerConfig struct {
	GitHubToken     string
	GitHubBaseURL   string // Optional: GitHub Enterprise API URL
	GitLabToken     string
	GitLabBaseURL   string // Optional: self-hosted GitLab
	DefaultProvider string // provider for bare "owner/repo" targets
}

type CheckpointConfig struct {
	Backend   string // "memory", "postgres" or "redis"
	KeyPrefix string
	TTL       time.Duration // redis only, 0 keeps threads forever
}

type RedisConfig struct {
	URL              string
	TranscriptStream string
	TranscriptGroup  string
	TranscriptDLQ    string
	Consumer         string
}

type A2AConfig struct {
	AllowedCallers []string
	Audience       string // expected audience of Google identity tokens
	JWTSecret      string // shared HS256 secret for non-Google callers
	RateLimit      int
	RateWindow     time.Duration
	RateBackend    string // "memory" or "redis"
	PublicURL      string
}

type EngineConfig struct {
	TurnTimeout time.Duration
	CallTimeout time.Duration
	DefaultRepo string
}

type TranscriptConfig struct {
	Enabled bool
	Dir     string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeChat   ServiceType = "chat"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Load loads configuration from environment variables.
// In development, it loads service-specific .env files first:
//   - .env.server for the A2A server
//   - .env.worker for the transcript worker
//   - .env.chat for the terminal chat
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("RELAY_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:    getEnv("RELAY_ENV", "development"),
		Port:   getEnv("PORT", "8080"),
		NodeID: int64(getEnvInt("NODE_ID", defaultNodeID(serviceType))),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sentinel-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		LLM: LLMConfig{
			Provider:  getEnv("LLM_PROVIDER", "gemini"),
			APIKey:    getEnv("LLM_API_KEY", os.Getenv("GEMINI_API_KEY")),
			BaseURL:   getEnv("LLM_BASE_URL", ""),
			Model:     getEnv("LLM_MODEL", ""),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 4096),
		},
		Logs: LogsConfig{
			ProjectID:       getEnv("GOOGLE_CLOUD_PROJECT", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Tracker: TrackerConfig{
			GitHubToken:     getEnv("GITHUB_TOKEN", ""),
			GitHubBaseURL:   getEnv("GITHUB_BASE_URL", ""),
			GitLabToken:     getEnv("GITLAB_TOKEN", ""),
			GitLabBaseURL:   getEnv("GITLAB_BASE_URL", ""),
			DefaultProvider: getEnv("TRACKER_DEFAULT_PROVIDER", "github"),
		},
		Checkpoint: CheckpointConfig{
			Backend:   getEnv("CHECKPOINT_BACKEND", BackendMemory),
			KeyPrefix: getEnv("CHECKPOINT_KEY_PREFIX", "sentinel:thread:"),
			TTL:       getEnvDuration("CHECKPOINT_TTL", 0),
		},
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			URL:              getEnv("REDIS_URL", ""),
			TranscriptStream: getEnv("TRANSCRIPT_STREAM", "sentinel_transcripts"),
			TranscriptGroup:  getEnv("TRANSCRIPT_CONSUMER_GROUP", "sentinel_archivers"),
			TranscriptDLQ:    getEnv("TRANSCRIPT_DLQ_STREAM", "sentinel_transcripts_dlq"),
			Consumer:         getEnv("REDIS_CONSUMER_NAME", hostname()),
		},
		A2A: A2AConfig{
			AllowedCallers: getEnvList("ALLOWED_SERVICE_ACCOUNTS"),
			Audience:       getEnv("A2A_AUDIENCE", ""),
			JWTSecret:      getEnv("A2A_JWT_SECRET", ""),
			RateLimit:      getEnvInt("A2A_RATE_LIMIT", 100),
			RateWindow:     getEnvDuration("A2A_RATE_WINDOW", 60*time.Second),
			RateBackend:    getEnv("A2A_RATE_BACKEND", BackendMemory),
			PublicURL:      getEnv("A2A_PUBLIC_URL", "http://localhost:8080"),
		},
		Engine: EngineConfig{
			TurnTimeout: getEnvDuration("ENGINE_TURN_TIMEOUT", 2*time.Minute),
			CallTimeout: getEnvDuration("ENGINE_CALL_TIMEOUT", 30*time.Second),
			DefaultRepo: getEnv("GIT_REPO_URL", ""),
		},
		Transcript: TranscriptConfig{
			Enabled: getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:     getEnv("TRANSCRIPT_DIR", "logs"),
		},
	}

	if err := cfg.validate(serviceType); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate(serviceType ServiceType) error {
	switch serviceType {
	case ServiceTypeServer, ServiceTypeChat:
		if !c.LLM.Enabled() {
			return fmt.Errorf("LLM_API_KEY is required and LLM_PROVIDER must be one of gemini, openai, anthropic (got %q)", c.LLM.Provider)
		}
		if c.Logs.ProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
		}
	case ServiceTypeWorker:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the transcript worker")
		}
	}

	if serviceType == ServiceTypeServer && c.A2A.Audience == "" && c.A2A.JWTSecret == "" {
		return fmt.Errorf("A2A_AUDIENCE or A2A_JWT_SECRET is required")
	}

	switch c.Checkpoint.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres checkpoint backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis checkpoint backend")
		}
	default:
		return fmt.Errorf("unknown CHECKPOINT_BACKEND %q", c.Checkpoint.Backend)
	}

	if c.A2A.RateBackend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis rate limiter")
	}
	if c.Transcript.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when TRANSCRIPT_ENABLED is set")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.Checkpoint.Backend == BackendRedis || c.A2A.RateBackend == BackendRedis || c.Transcript.Enabled
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	switch c.Provider {
	case "gemini", "openai", "anthropic":
		return c.APIKey != ""
	default:
		return false
	}
}

func (c TrackerConfig) GitHubEnabled() bool {
	return c.GitHubToken != ""
}

func (c TrackerConfig) GitLabEnabled() bool {
	return c.GitLabToken != ""
}

func defaultNodeID(serviceType ServiceType) int {
	switch serviceType {
	case ServiceTypeWorker:
		return 2
	case ServiceTypeChat:
		return 3
	default:
		return 1
	}
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "sentinel"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "2m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
