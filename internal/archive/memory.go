package archive

import (
	"context"
	"fmt"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Report)}
}

func (s *MemoryStore) Put(_ context.Context, r Report) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := validate(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.ID] = clone(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Report, error) {
	if s == nil {
		return Report{}, fmt.Errorf("store is nil")
	}
	id, err := normalizeID(id)
	if err != nil {
		return Report{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return clone(r), nil
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Report, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	all := make([]Report, 0, len(s.data))
	for _, r := range s.data {
		all = append(all, clone(r))
	}
	s.mu.RUnlock()
	return newestFirst(all, opts), nil
}

func clone(r Report) Report {
	r.ProvidersUsed = append([]string(nil), r.ProvidersUsed...)
	r.Missing = append([]string(nil), r.Missing...)
	return r
}
