package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps task records in memory. Suitable for tests and for
// engines configured without a database path.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TaskID]; ok {
		return fmt.Errorf("task %s already exists", rec.TaskID)
	}
	s.records[rec.TaskID] = *rec
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("finding task %s: %w", id, ErrNotFound)
	}
	return &rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TaskID]; !ok {
		return fmt.Errorf("updating task %s: %w", rec.TaskID, ErrNotFound)
	}
	s.records[rec.TaskID] = *rec
	return nil
}

func (s *MemoryStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, rec := range s.records {
		if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Close() error { return nil }
