package cache

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"repolens/internal/evidence"
)

// Memory is an in-process LRU tier with a fixed TTL per entry.
type Memory struct {
	lru *expirable.LRU[string, evidence.Result]
}

func NewMemory(cfg Config) *Memory {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &Memory{lru: expirable.NewLRU[string, evidence.Result](cfg.MaxEntries, nil, cfg.TTL)}
}

func (m *Memory) Get(_ context.Context, key string) (evidence.Result, bool, error) {
	res, ok := m.lru.Get(key)
	return res, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, res evidence.Result) error {
	m.lru.Add(key, res)
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) Purge() { m.lru.Purge() }
