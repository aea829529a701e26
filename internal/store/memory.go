package store

import (
	"context"
	"sync"

	"sentinel.app/relay/internal/model"
)

// MemoryStore keeps encoded checkpoints in process memory.
// Callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	version int64
	data    []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (*model.ThreadState, error) {
	s.mu.RLock()
	rec, ok := s.records[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(threadID, rec.data)
}

func (s *MemoryStore) Save(_ context.Context, state *model.ThreadState, expected int64) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[state.ThreadID].version != expected {
		return ErrVersionConflict
	}
	s.records[state.ThreadID] = memoryRecord{version: state.Version, data: data}
	return nil
}
