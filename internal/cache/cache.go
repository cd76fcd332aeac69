// Package cache memoises provider results across requests. It is a
// performance layer only: any tier may miss or fail without changing answers.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

// Tier is one storage level. Get reports a miss with ok=false.
type Tier interface {
	Get(ctx context.Context, key string) (res evidence.Result, ok bool, err error)
	Set(ctx context.Context, key string, res evidence.Result) error
}

type MetricsSnapshot struct {
	Hits      uint64
	Misses    uint64
	Shared    uint64
	OriginErr uint64
	TierErr   uint64
}

type metrics struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	shared    atomic.Uint64
	originErr atomic.Uint64
	tierErr   atomic.Uint64
}

// DefaultOriginTimeout bounds a shared origin call when OriginTimeout is unset.
const DefaultOriginTimeout = 30 * time.Second

// Cache checks tiers in order and backfills earlier tiers on a later hit.
type Cache struct {
	// OriginTimeout bounds each origin call. The call does not inherit the
	// cancellation of the request that started it, since other requests may
	// be waiting on the same result. Set it before using Middleware.
	OriginTimeout time.Duration

	tiers   []Tier
	group   singleflight.Group
	metrics metrics
	logger  *zap.Logger
}

func New(logger *zap.Logger, tiers ...Tier) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	var ts []Tier
	for _, t := range tiers {
		if t != nil {
			ts = append(ts, t)
		}
	}
	return &Cache{tiers: ts, logger: logger.Named("cache")}
}

// Key identifies one provider call.
func Key(ref repo.Ref, provider string, p evidence.Params) string {
	return ref.String() + "|" + provider + "|" + p.Key()
}

// Middleware caches successful results of the wrapped fetcher. Concurrent
// misses for the same key share a single origin call.
func (c *Cache) Middleware() evidence.Middleware {
	return func(name string, next evidence.Fetcher) evidence.Fetcher {
		return evidence.FetcherFunc(func(ctx context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
			key := Key(ref, name, p)
			if res, ok := c.lookup(ctx, key); ok {
				return res, nil
			}
			c.metrics.misses.Add(1)

			ch := c.group.DoChan(key, func() (any, error) {
				octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.originTimeout())
				defer cancel()
				res, err := next.Fetch(octx, ref, p)
				if err != nil {
					c.metrics.originErr.Add(1)
					return evidence.Result{}, err
				}
				c.store(octx, key, 0, res)
				return res, nil
			})
			select {
			case <-ctx.Done():
				return evidence.Result{}, ctx.Err()
			case r := <-ch:
				if r.Shared {
					c.metrics.shared.Add(1)
				}
				if r.Err != nil {
					return evidence.Result{}, r.Err
				}
				return r.Val.(evidence.Result), nil
			}
		})
	}
}

func (c *Cache) originTimeout() time.Duration {
	if c.OriginTimeout > 0 {
		return c.OriginTimeout
	}
	return DefaultOriginTimeout
}

func (c *Cache) lookup(ctx context.Context, key string) (evidence.Result, bool) {
	for i, t := range c.tiers {
		res, ok, err := t.Get(ctx, key)
		if err != nil {
			c.metrics.tierErr.Add(1)
			c.logger.Debug("cache tier read failed", zap.Int("tier", i), zap.Error(err))
			continue
		}
		if ok {
			c.metrics.hits.Add(1)
			if i > 0 {
				c.store(ctx, key, i, res)
			}
			return res, true
		}
	}
	return evidence.Result{}, false
}

// store writes res to every tier before upto; upto=0 means all tiers.
func (c *Cache) store(ctx context.Context, key string, upto int, res evidence.Result) {
	if upto <= 0 {
		upto = len(c.tiers)
	}
	for i := 0; i < upto; i++ {
		if err := c.tiers[i].Set(ctx, key, res); err != nil {
			c.metrics.tierErr.Add(1)
			c.logger.Debug("cache tier write failed", zap.Int("tier", i), zap.Error(err))
		}
	}
}

func (c *Cache) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:      c.metrics.hits.Load(),
		Misses:    c.metrics.misses.Load(),
		Shared:    c.metrics.shared.Load(),
		OriginErr: c.metrics.originErr.Load(),
		TierErr:   c.metrics.tierErr.Load(),
	}
}

// Config sizes the memory tier.
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

func DefaultConfig() Config {
	return Config{MaxEntries: 512, TTL: 10 * time.Minute}
}
