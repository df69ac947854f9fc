package store

import (
	"context"
	"sync"

	"github.com/mcdev12/countdown/go/internal/countdown"
)

// MemoryStore keeps the record in process memory. Used for tests and for
// deployments that accept losing the timer on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	record *countdown.TimerRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetCurrent(ctx context.Context) (*countdown.TimerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil {
		return nil, nil
	}
	rec := *s.record
	return &rec, nil
}

func (s *MemoryStore) Replace(ctx context.Context, r countdown.TimerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = &r
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = nil
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
