// Package store persists thread checkpoints.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sentinel.app/relay/internal/model"
)

// ErrNotFound is returned when no checkpoint exists for a thread.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a checkpoint changed since it was loaded.
var ErrVersionConflict = errors.New("checkpoint version conflict")

// CheckpointStore loads and saves the state of a thread.
//
// Save writes state only if the stored version equals expected. An expected
// version of 0 means the thread must not exist yet.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (*model.ThreadState, error)
	Save(ctx context.Context, state *model.ThreadState, expected int64) error
}

func encode(state *model.ThreadState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding checkpoint %s: %w", state.ThreadID, err)
	}
	return data, nil
}

func decode(threadID string, data []byte) (*model.ThreadState, error) {
	var state model.ThreadState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", threadID, err)
	}
	return &state, nil
}
