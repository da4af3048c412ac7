package ledger

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps the last save in memory. Server tables without a
// configured backend use it.
type MemoryStore struct {
	mu   sync.Mutex
	save *Save
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Save, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.save == nil {
		return Save{}, ErrNotFound
	}
	save := *s.save
	save.Ledger = slices.Clone(save.Ledger)
	return save, nil
}

func (s *MemoryStore) Save(ctx context.Context, save Save) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	save.Ledger = slices.Clone(save.Ledger)
	s.save = &save
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save = nil
	return nil
}
