package synth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/llm"
	"repolens/internal/prompt"
)

func TestSynthesizePassesProvidersThrough(t *testing.T) {
	fake := llm.NewFakeBackend()
	fake.Reply = func(req llm.Request) (string, error) { return "  It uses cobra and zap.\n", nil }
	s := New(fake, Options{Model: "m1"}, zaptest.NewLogger(t))

	p := prompt.Prompt{Text: "[TASK]\n- x\n", ProvidersUsed: []string{"file_content", "code_search"}}
	a, err := s.Synthesize(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, "It uses cobra and zap.", a.Text)
	assert.Equal(t, []string{"file_content", "code_search"}, a.ProvidersUsed)
	assert.Equal(t, "fake", a.Backend)
	assert.Equal(t, "m1", a.Model)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, p.Text, calls[0].Prompt)
	assert.Equal(t, llm.DefaultMaxTokens, calls[0].MaxTokens)
	assert.NotEmpty(t, calls[0].System)
}

func TestZeroTemperatureReachesBackend(t *testing.T) {
	fake := llm.NewFakeBackend()
	fake.Reply = func(llm.Request) (string, error) { return "ok", nil }
	zero := float32(0)
	s := New(fake, Options{Temperature: &zero}, nil)

	_, err := s.Synthesize(context.Background(), prompt.Prompt{Text: "p"}, Options{})
	require.NoError(t, err)
	hot := float32(1.2)
	_, err = s.Synthesize(context.Background(), prompt.Prompt{Text: "p"}, Options{Temperature: &hot})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[0].Temperature)
	assert.Zero(t, *calls[0].Temperature)
	require.NotNil(t, calls[1].Temperature)
	assert.InDelta(t, 1.2, *calls[1].Temperature, 1e-6)
}

func TestUnsetTemperatureUsesDefault(t *testing.T) {
	fake := llm.NewFakeBackend()
	fake.Reply = func(llm.Request) (string, error) { return "ok", nil }
	_, err := New(fake, Options{}, nil).Synthesize(context.Background(), prompt.Prompt{Text: "p"}, Options{})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Temperature)
	assert.InDelta(t, llm.DefaultTemperature, *calls[0].Temperature, 1e-6)
}

func TestSynthesisErrorPreservesCause(t *testing.T) {
	fake := llm.NewFakeBackend()
	fake.Reply = func(llm.Request) (string, error) { return "", llm.NewPermanentError(llm.ErrAuth) }
	_, err := New(fake, Options{}, nil).Synthesize(context.Background(), prompt.Prompt{Text: "p"}, Options{})

	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fake", se.Backend)
	assert.True(t, errors.Is(err, llm.ErrAuth))
	assert.Len(t, fake.Calls(), 1, "exactly one attempt")
}

func TestEmptyTextIsAnError(t *testing.T) {
	fake := llm.NewFakeBackend()
	fake.Reply = func(llm.Request) (string, error) { return " \n", nil }
	_, err := New(fake, Options{}, nil).Synthesize(context.Background(), prompt.Prompt{Text: "p"}, Options{})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

type slow struct{}

func (slow) Name() string { return "slow" }
func (slow) Close() error { return nil }
func (slow) Generate(ctx context.Context, _ llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestTimeout(t *testing.T) {
	s := New(slow{}, Options{}, nil)
	start := time.Now()
	_, err := s.Synthesize(context.Background(), prompt.Prompt{Text: "p"}, Options{Timeout: 20 * time.Millisecond})
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, Timeout(err))
}

func TestCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(slow{}, Options{}, nil).Synthesize(ctx, prompt.Prompt{Text: "p"}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, Timeout(err))
}
