package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/ratelimit"
)

type scripted struct {
	errs  []error
	calls atomic.Int32
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Close() error { return nil }
func (s *scripted) Generate(context.Context, Request) (string, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return "ok", nil
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(tag string) Middleware {
		return func(next Backend) Backend {
			return &wrapped{next: next, gen: func(ctx context.Context, req Request) (string, error) {
				order = append(order, tag)
				return next.Generate(ctx, req)
			}}
		}
	}
	b := Wrap(NewFakeBackend(), mark("A"), mark("B"))
	_, err := b.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, order)
	assert.Equal(t, "fake", b.Name())
}

func TestRetryRecoversFromTransient(t *testing.T) {
	s := &scripted{errs: []error{ErrTransient, ErrRateLimited}}
	out, err := Wrap(s, Retry(3, time.Millisecond)).Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), s.calls.Load())
}

func TestRetryStopsOnPermanent(t *testing.T) {
	s := &scripted{errs: []error{NewPermanentError(ErrAuth), nil}}
	_, err := Wrap(s, Retry(5, time.Millisecond)).Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrAuth)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	s := &scripted{errs: []error{ErrTransient, ErrTransient, ErrTransient}}
	_, err := Wrap(s, Retry(2, time.Millisecond)).Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &scripted{errs: []error{ErrTransient, ErrTransient}}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Wrap(s, Retry(2, time.Second)).Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitAndLoggingPassThrough(t *testing.T) {
	l := ratelimit.New(1000, 2)
	defer l.Stop()
	b := Wrap(NewFakeBackend(), WithLogging(zaptest.NewLogger(t)), RateLimit(l), RateLimit(nil))
	out, err := b.Generate(context.Background(), Request{Prompt: "[EVIDENCE: a]\n[EVIDENCE: b]"})
	require.NoError(t, err)
	assert.Equal(t, "Offline answer based on 2 evidence sections.", out)
}

func TestHooks(t *testing.T) {
	var before, after string
	ctx := WithHook(context.Background(), HookFuncs{
		OnBefore: func(_ context.Context, backend string, req Request) { before = backend + ":" + req.Prompt },
		OnAfter:  func(_ context.Context, _ string, text string, _ error) { after = text },
	})
	fake := NewFakeBackend()
	fake.Reply = func(Request) (string, error) { return "answer", nil }
	_, err := Wrap(fake, WithHooks()).Generate(ctx, Request{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "fake:q", before)
	assert.Equal(t, "answer", after)
	// No hook in context is fine.
	_, err = Wrap(fake, WithHooks()).Generate(context.Background(), Request{})
	assert.NoError(t, err)
}

func TestStatusErrorKinds(t *testing.T) {
	cases := []struct {
		code      int
		kind      error
		permanent bool
	}{
		{401, ErrAuth, true},
		{403, ErrAuth, true},
		{429, ErrRateLimited, false},
		{500, ErrTransient, false},
		{503, ErrTransient, false},
		{529, ErrTransient, false},
	}
	for _, c := range cases {
		err := statusError("x", c.code, "body")
		assert.ErrorIs(t, err, c.kind, "status %d", c.code)
		assert.Equal(t, c.permanent, IsPermanent(err), "status %d", c.code)
	}
	assert.True(t, IsPermanent(statusError("x", 400, strings.Repeat("z", 5000))))
	assert.LessOrEqual(t, len(statusError("x", 400, strings.Repeat("z", 5000)).Error()), maxErrBody+64)
}

func TestClaudeClient(t *testing.T) {
	var got claudeReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"The project uses "},{"type":"text","text":"cobra."}]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient(Config{APIKey: "k", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), Request{Prompt: "deps?", System: "be brief", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "The project uses cobra.", out)
	assert.Equal(t, DefaultClaudeModel, got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	assert.Equal(t, "be brief", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "deps?", got.Messages[0].Content)
}

func TestClaudeClientSendsZeroTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()
	c := NewClaudeClient(Config{APIKey: "k", BaseURL: srv.URL})

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "temperature", "unset temperature is left to the API")

	zero := float32(0)
	_, err = c.Generate(context.Background(), Request{Prompt: "p", Temperature: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0.0, raw["temperature"])
}

func TestClaudeClientErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"type":"error"}`))
	}))
	defer srv.Close()
	c := NewClaudeClient(Config{APIKey: "k", BaseURL: srv.URL})

	_, err := c.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrRateLimited)

	status = http.StatusUnauthorized
	_, err = c.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrAuth)

	_, err = NewClaudeClient(Config{BaseURL: srv.URL}).Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrAuth, "missing key fails before any request")
}

func TestClaudeClientCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := NewClaudeClient(Config{APIKey: "k", BaseURL: srv.URL}).Generate(ctx, Request{Prompt: "p"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGroqClientUsesChatCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gk", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultGroqModel, body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	out, err := NewGroqClient(Config{APIKey: "gk", BaseURL: srv.URL}).Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestChatClientKeepsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	zero := float32(0)
	_, err := NewGroqClient(Config{APIKey: "gk", BaseURL: srv.URL}).Generate(context.Background(), Request{Prompt: "hi", Temperature: &zero})
	require.NoError(t, err)
	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 1e-6)
}

func TestChatClientErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()
	_, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, IsPermanent(err))
}

func TestOpen(t *testing.T) {
	b, err := Open(context.Background(), "Offline", Config{})
	require.NoError(t, err)
	assert.Equal(t, "fake", b.Name())

	_, err = Open(context.Background(), "nope", Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "groq")

	_, err = Open(context.Background(), "gemini", Config{})
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, "claude", Canonical(" Anthropic "))
}
