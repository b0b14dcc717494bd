package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps lock records in process memory. It only excludes
// concurrent runs inside one process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) TryAcquire(_ context.Context, rec Record, staleBefore time.Time) (bool, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.records[rec.Variant]; ok && !current.AcquiredAt.Before(staleBefore) {
		return false, current, nil
	}

	s.records[rec.Variant] = rec
	return true, rec, nil
}

func (s *MemoryStore) Release(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.Variant]
	if !ok || current.Holder != rec.Holder {
		return ErrNotHeld
	}
	delete(s.records, rec.Variant)
	return nil
}

func (s *MemoryStore) Current(_ context.Context, variant string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[variant]
	return rec, ok, nil
}

func (s *MemoryStore) ForceRelease(_ context.Context, variant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, variant)
	return nil
}
