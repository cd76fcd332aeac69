package archive

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently read reports in memory. Reports are immutable
// once written, so entries never go stale.
type CachedStore struct {
	origin Store
	cache  *lru.Cache[string, Report]
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, Report](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, cache: c}, nil
}

func (s *CachedStore) Put(ctx context.Context, r Report) error {
	if err := s.origin.Put(ctx, r); err != nil {
		return err
	}
	s.cache.Add(r.ID, clone(r))
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (Report, error) {
	key, err := normalizeID(id)
	if err != nil {
		return Report{}, err
	}
	if r, ok := s.cache.Get(key); ok {
		return clone(r), nil
	}
	r, err := s.origin.Get(ctx, key)
	if err != nil {
		return Report{}, err
	}
	s.cache.Add(key, clone(r))
	return r, nil
}

func (s *CachedStore) List(ctx context.Context, opts ListOptions) ([]Report, error) {
	return s.origin.List(ctx, opts)
}
