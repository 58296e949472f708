package store

import (
	"context"
	"sync"

	"github.com/articleforge/articleforge/internal/job/model"
)

// Memory is an in-process Store for tests and single-node dev mode.
// Entries are stored as encoded bytes so the round-trip matches the
// durable backends exactly.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string][]byte),
	}
}

// Put upserts the record under its id.
func (s *Memory) Put(ctx context.Context, rec *model.Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[Key(rec.ID)] = data
	s.mu.Unlock()
	return nil
}

// Get retrieves the record for the id.
func (s *Memory) Get(ctx context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	data, ok := s.entries[Key(id)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return model.Decode(data)
}

// Len reports how many records are stored. Test helper.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
