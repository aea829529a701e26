package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sentinel.app/relay/core/config"
	"sentinel.app/relay/core/db"
)

// Backends carries the connections a checkpoint backend may need.
// Either may be nil when the configured backend does not use it.
type Backends struct {
	DB    *db.DB
	Redis *redis.Client
}

// NewCheckpointStore builds the backend selected by cfg.Backend.
func NewCheckpointStore(ctx context.Context, cfg config.CheckpointConfig, b Backends) (CheckpointStore, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("postgres checkpoint backend requires a database connection")
		}
		s := NewPostgresStore(b.DB.Pool())
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis checkpoint backend requires a redis client")
		}
		return NewRedisStore(b.Redis, cfg.KeyPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
