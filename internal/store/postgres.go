package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sentinel.app/relay/internal/model"
)

// Querier is the subset of pgxpool.Pool and pgx.Tx the postgres store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
  thread_id  TEXT PRIMARY KEY,
  version    BIGINT NOT NULL,
  state      JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the checkpoints table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, checkpointSchema); err != nil {
		return fmt.Errorf("creating checkpoints table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, threadID string) (*model.ThreadState, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT state FROM checkpoints WHERE thread_id = $1`, threadID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}
	return decode(threadID, data)
}

func (s *PostgresStore) Save(ctx context.Context, state *model.ThreadState, expected int64) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag
	if expected == 0 {
		tag, err = s.db.Exec(ctx, `
INSERT INTO checkpoints (thread_id, version, state)
VALUES ($1, $2, $3)
ON CONFLICT (thread_id) DO NOTHING`, state.ThreadID, state.Version, data)
	} else {
		tag, err = s.db.Exec(ctx, `
UPDATE checkpoints
SET version = $2, state = $3, updated_at = NOW()
WHERE thread_id = $1 AND version = $4`, state.ThreadID, state.Version, data, expected)
	}
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", state.ThreadID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
