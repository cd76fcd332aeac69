package gather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

var acme = repo.MustParse("acme/widgets")

func ok(name, payload string, delay time.Duration) evidence.Descriptor {
	return evidence.Descriptor{Name: name, Fetcher: evidence.FetcherFunc(
		func(ctx context.Context, _ repo.Ref, _ evidence.Params) (evidence.Result, error) {
			select {
			case <-time.After(delay):
				return evidence.Result{Payload: payload}, nil
			case <-ctx.Done():
				return evidence.Result{}, ctx.Err()
			}
		})}
}

func failing(name string, kind error) evidence.Descriptor {
	return evidence.Descriptor{Name: name, Fetcher: evidence.FetcherFunc(
		func(context.Context, repo.Ref, evidence.Params) (evidence.Result, error) {
			return evidence.Result{}, evidence.NewProviderError(name, kind, nil)
		})}
}

func hanging(name string) evidence.Descriptor {
	return evidence.Descriptor{Name: name, Fetcher: evidence.FetcherFunc(
		func(context.Context, repo.Ref, evidence.Params) (evidence.Result, error) {
			time.Sleep(3 * time.Second)
			return evidence.Result{Payload: "too late"}, nil
		})}
}

func TestPartialFailureKeepsSuccesses(t *testing.T) {
	g := New(Options{}, zaptest.NewLogger(t))
	ds := []evidence.Descriptor{
		ok("overview", "o", 0),
		failing("issues", evidence.ErrRateLimited),
		ok("structure", "s", 5*time.Millisecond),
		failing("code_search", evidence.ErrNotFound),
	}
	b, err := g.Gather(context.Background(), acme, ds, evidence.Params{})
	require.NoError(t, err)
	assert.Len(t, b.Results, 2)
	assert.Equal(t, []string{"overview", "structure"}, b.Succeeded)
	assert.Equal(t, []string{"overview", "issues", "structure", "code_search"}, b.Attempted)
	assert.True(t, errors.Is(b.Failures["issues"], evidence.ErrRateLimited))
	assert.True(t, errors.Is(b.Failures["code_search"], evidence.ErrNotFound))
}

func TestAllFailedIsNoEvidence(t *testing.T) {
	g := New(Options{}, nil)
	ds := []evidence.Descriptor{
		failing("overview", evidence.ErrTransient),
		failing("file_content", evidence.ErrTransient),
		failing("structure", evidence.ErrTransient),
		failing("commit_history", evidence.ErrTransient),
	}
	b, err := g.Gather(context.Background(), acme, ds, evidence.Params{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEvidence))
	var ne *NoEvidenceError
	require.ErrorAs(t, err, &ne)
	assert.Len(t, ne.Failures, 4)
	assert.Empty(t, b.Succeeded)
	assert.Contains(t, err.Error(), "overview=transient")
}

func TestNoProvidersIsNoEvidence(t *testing.T) {
	_, err := New(Options{}, nil).Gather(context.Background(), acme, nil, evidence.Params{})
	assert.True(t, errors.Is(err, ErrNoEvidence))
}

func TestDeadlineExcludesOnlySlowProvider(t *testing.T) {
	g := New(Options{PerProvider: 5 * time.Second, Deadline: 150 * time.Millisecond}, nil)
	ds := []evidence.Descriptor{ok("overview", "o", 0), hanging("structure"), ok("file_content", "f", 10*time.Millisecond)}

	start := time.Now()
	b, err := g.Gather(context.Background(), acme, ds, evidence.Params{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond, "gather must return near the deadline")
	assert.Equal(t, []string{"overview", "file_content"}, b.Succeeded)
	assert.True(t, errors.Is(b.Failures["structure"], evidence.ErrTimeout))
}

func TestPerProviderTimeoutIsTimeoutKind(t *testing.T) {
	g := New(Options{PerProvider: 30 * time.Millisecond, Deadline: time.Second}, nil)
	ds := []evidence.Descriptor{ok("overview", "o", time.Second), ok("issues", "i", 0)}
	b, err := g.Gather(context.Background(), acme, ds, evidence.Params{})
	require.NoError(t, err)
	assert.Equal(t, "timeout", evidence.KindOf(b.Failures["overview"]))
	var perr *evidence.ProviderError
	require.ErrorAs(t, b.Failures["overview"], &perr)
	assert.Equal(t, "overview", perr.Provider)
}

func TestBundleOnlyHoldsSelectedProviders(t *testing.T) {
	// A fetcher that claims to be another provider must not leak into the bundle.
	sneaky := evidence.Descriptor{Name: "overview", Fetcher: evidence.FetcherFunc(
		func(context.Context, repo.Ref, evidence.Params) (evidence.Result, error) {
			return evidence.Result{Provider: "issues", Payload: "x"}, nil
		})}
	b, err := New(Options{}, nil).Gather(context.Background(), acme, []evidence.Descriptor{sneaky}, evidence.Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"overview"}, b.Succeeded)
	assert.NotContains(t, b.Results, "issues")
	assert.Equal(t, "overview", b.Results["overview"].Provider)
}

func TestUnclassifiedErrorsBecomeTransient(t *testing.T) {
	d := evidence.Descriptor{Name: "overview", Fetcher: evidence.FetcherFunc(
		func(context.Context, repo.Ref, evidence.Params) (evidence.Result, error) {
			return evidence.Result{}, errors.New("connection reset")
		})}
	b, _ := New(Options{}, nil).Gather(context.Background(), acme, []evidence.Descriptor{d, ok("issues", "i", 0)}, evidence.Params{})
	assert.True(t, errors.Is(b.Failures["overview"], evidence.ErrTransient))
}

func TestProgressReportsEveryProvider(t *testing.T) {
	var mu sync.Mutex
	got := map[string]string{}
	ctx := WithProgress(context.Background(), func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		got[name] = evidence.KindOf(err)
	})
	_, err := New(Options{}, nil).Gather(ctx, acme,
		[]evidence.Descriptor{ok("overview", "o", 0), failing("issues", evidence.ErrAuth)}, evidence.Params{})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"overview": "", "issues": "auth"}, got)
}

func TestParamsReachFetchers(t *testing.T) {
	var seen evidence.Params
	d := evidence.Descriptor{Name: "structure", Fetcher: evidence.FetcherFunc(
		func(_ context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
			seen = p
			assert.Equal(t, acme, ref)
			return evidence.Result{Payload: "s"}, nil
		})}
	_, err := New(Options{}, nil).Gather(context.Background(), acme, []evidence.Descriptor{d}, evidence.Params{MaxDepth: 2, MaxFiles: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, seen.MaxDepth)
	assert.Equal(t, 20, seen.MaxFiles)
}
