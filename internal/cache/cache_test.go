package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

var acme = repo.MustParse("acme/widgets")

type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *countingFetcher) Fetch(ctx context.Context, _ repo.Ref, p evidence.Params) (evidence.Result, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return evidence.Result{}, f.err
	}
	return evidence.Result{Payload: "tree", OK: true}, nil
}

func TestMemoryHit(t *testing.T) {
	origin := &countingFetcher{}
	c := New(zaptest.NewLogger(t), NewMemory(Config{}))
	f := evidence.Wrap(origin, evidence.Structure, c.Middleware())

	for i := 0; i < 3; i++ {
		res, err := f.Fetch(context.Background(), acme, evidence.Params{MaxDepth: 2})
		require.NoError(t, err)
		assert.Equal(t, "tree", res.Payload)
	}
	assert.Equal(t, int32(1), origin.calls.Load())

	// Different params are a different key.
	_, err := f.Fetch(context.Background(), acme, evidence.Params{MaxDepth: 3})
	require.NoError(t, err)
	assert.Equal(t, int32(2), origin.calls.Load())

	m := c.Metrics()
	assert.Equal(t, uint64(2), m.Hits)
	assert.Equal(t, uint64(2), m.Misses)
}

func TestConcurrentMissesShareOneCall(t *testing.T) {
	origin := &countingFetcher{release: make(chan struct{})}
	c := New(nil, NewMemory(Config{}))
	f := evidence.Wrap(origin, evidence.Overview, c.Middleware())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Fetch(context.Background(), acme, evidence.Params{})
			assert.NoError(t, err)
			assert.Equal(t, "tree", res.Payload)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(origin.release)
	wg.Wait()
	assert.Equal(t, int32(1), origin.calls.Load())
}

// slowFetcher waits for its delay or for ctx, whichever comes first.
type slowFetcher struct {
	calls atomic.Int32
	delay time.Duration
}

func (f *slowFetcher) Fetch(ctx context.Context, _ repo.Ref, _ evidence.Params) (evidence.Result, error) {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
		return evidence.Result{Payload: "tree", OK: true}, nil
	case <-ctx.Done():
		return evidence.Result{}, ctx.Err()
	}
}

func TestSharedCallOutlivesFirstCaller(t *testing.T) {
	origin := &slowFetcher{delay: 200 * time.Millisecond}
	c := New(zaptest.NewLogger(t), NewMemory(Config{}))
	f := evidence.Wrap(origin, evidence.Structure, c.Middleware())

	first, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.Fetch(first, acme, evidence.Params{})
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	res, err := f.Fetch(context.Background(), acme, evidence.Params{})
	require.NoError(t, err)
	assert.Equal(t, "tree", res.Payload)
	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), origin.calls.Load())

	// The result was stored even though the first caller gave up.
	_, err = f.Fetch(context.Background(), acme, evidence.Params{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), origin.calls.Load())
}

func TestOriginTimeout(t *testing.T) {
	origin := &slowFetcher{delay: time.Second}
	c := New(nil, NewMemory(Config{}))
	c.OriginTimeout = 20 * time.Millisecond
	f := evidence.Wrap(origin, evidence.Structure, c.Middleware())

	_, err := f.Fetch(context.Background(), acme, evidence.Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(1), c.Metrics().OriginErr)
}

func TestFailuresAreNotCached(t *testing.T) {
	origin := &countingFetcher{err: evidence.ErrTransient}
	c := New(nil, NewMemory(Config{}))
	f := evidence.Wrap(origin, evidence.Issues, c.Middleware())
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), acme, evidence.Params{})
		assert.ErrorIs(t, err, evidence.ErrTransient)
	}
	assert.Equal(t, int32(2), origin.calls.Load())
	assert.Equal(t, uint64(2), c.Metrics().OriginErr)
}

type brokenTier struct{}

func (brokenTier) Get(context.Context, string) (evidence.Result, bool, error) {
	return evidence.Result{}, false, errors.New("down")
}
func (brokenTier) Set(context.Context, string, evidence.Result) error { return errors.New("down") }

func TestBrokenTierIsSkipped(t *testing.T) {
	origin := &countingFetcher{}
	mem := NewMemory(Config{})
	c := New(nil, brokenTier{}, mem)
	f := evidence.Wrap(origin, evidence.Overview, c.Middleware())
	_, err := f.Fetch(context.Background(), acme, evidence.Params{})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), acme, evidence.Params{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), origin.calls.Load())
	assert.Positive(t, c.Metrics().TierErr)
}

func TestLaterTierBackfillsEarlier(t *testing.T) {
	first, second := NewMemory(Config{}), NewMemory(Config{})
	key := Key(acme, evidence.Overview, evidence.Params{})
	require.NoError(t, second.Set(context.Background(), key, evidence.Result{Payload: "warm"}))

	c := New(nil, first, second)
	f := evidence.Wrap(&countingFetcher{}, evidence.Overview, c.Middleware())
	res, err := f.Fetch(context.Background(), acme, evidence.Params{})
	require.NoError(t, err)
	assert.Equal(t, "warm", res.Payload)
	assert.Equal(t, 1, first.Len())
}

func TestMemoryExpires(t *testing.T) {
	m := NewMemory(Config{MaxEntries: 4, TTL: 20 * time.Millisecond})
	require.NoError(t, m.Set(context.Background(), "k", evidence.Result{Payload: "v"}))
	_, ok, _ := m.Get(context.Background(), "k")
	assert.True(t, ok)
	time.Sleep(60 * time.Millisecond)
	_, ok, _ = m.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestPostgresTier(t *testing.T) {
	dsn := os.Getenv("REPOLENS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("REPOLENS_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pg, err := OpenPostgres(ctx, dsn, time.Minute)
	require.NoError(t, err)
	defer pg.Close()

	key := Key(acme, evidence.Overview, evidence.Params{}) + "|" + t.Name()
	require.NoError(t, pg.Set(ctx, key, evidence.Result{Provider: evidence.Overview, Payload: "p", Truncated: true}))
	res, ok, err := pg.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p", res.Payload)
	assert.True(t, res.Truncated)
	assert.True(t, res.OK)
}
