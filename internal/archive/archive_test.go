package archive

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(repo string, at time.Time) Report {
	return Report{
		ID:            NewID(),
		Repo:          repo,
		Question:      "What dependencies does this project use?",
		Text:          "cobra, zap",
		ProvidersUsed: []string{"file_content", "code_search"},
		Backend:       "fake",
		CreatedAt:     at.UTC(),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	r := report("acme/widgets", time.Now())
	require.NoError(t, s.Put(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(r, got); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	got.ProvidersUsed[0] = "mutated"
	again, _ := s.Get(ctx, r.ID)
	assert.Equal(t, "file_content", again.ProvidersUsed[0])
}

func TestGetUnknownOrMalformedID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), NewID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutValidates(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Put(context.Background(), Report{Repo: "a/b"}))
	assert.Error(t, s.Put(context.Background(), Report{ID: "nope", Repo: "a/b"}))
	assert.Error(t, s.Put(context.Background(), Report{ID: NewID()}))
}

func TestListNewestFirstWithFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	old := report("acme/widgets", base)
	mid := report("other/thing", base.Add(time.Hour))
	recent := report("acme/widgets", base.Add(2*time.Hour))
	for _, r := range []Report{old, mid, recent} {
		require.NoError(t, s.Put(ctx, r))
	}

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{recent.ID, mid.ID, old.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	acme, err := s.List(ctx, ListOptions{Repo: "ACME/widgets"})
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, recent.ID, acme[0].ID)

	one, err := s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

type countingStore struct {
	Store
	gets atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, id string) (Report, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, id)
}

func TestCachedStore(t *testing.T) {
	origin := &countingStore{Store: NewMemoryStore()}
	s, err := NewCachedStore(origin, 8)
	require.NoError(t, err)
	ctx := context.Background()

	r := report("acme/widgets", time.Now())
	require.NoError(t, origin.Store.Put(ctx, r))
	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.Text, got.Text)
	}
	assert.Equal(t, int32(1), origin.gets.Load())

	r2 := report("acme/widgets", time.Now())
	require.NoError(t, s.Put(ctx, r2))
	_, err = s.Get(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), origin.gets.Load(), "written reports are served from cache")
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("REPOLENS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("REPOLENS_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	r := report("acme/"+t.Name(), time.Now().Truncate(time.Millisecond))
	require.NoError(t, s.Put(ctx, r))
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Text, got.Text)
	list, err := s.List(ctx, ListOptions{Repo: r.Repo})
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, r.ID, list[0].ID)
}

func TestS3Store(t *testing.T) {
	endpoint := os.Getenv("REPOLENS_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("REPOLENS_TEST_S3_ENDPOINT not set")
	}
	s, err := NewS3Store(S3Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("REPOLENS_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("REPOLENS_TEST_S3_SECRET_KEY"),
		Bucket:    "repolens-test",
	})
	require.NoError(t, err)
	ctx := context.Background()
	r := report("acme/widgets", time.Now())
	require.NoError(t, s.Put(ctx, r))
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ProvidersUsed, got.ProvidersUsed)
}

func TestNewS3StoreValidates(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)
}
