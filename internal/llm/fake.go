package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeBackend returns deterministic text for offline use and tests.
type FakeBackend struct {
	// Reply overrides the default echo when set.
	Reply func(req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

func NewFakeBackend() *FakeBackend { return &FakeBackend{} }

func (f *FakeBackend) Name() string { return "fake" }
func (f *FakeBackend) Close() error { return nil }

func (f *FakeBackend) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.Reply != nil {
		return f.Reply(req)
	}
	return fmt.Sprintf("Offline answer based on %d evidence sections.", strings.Count(req.Prompt, "[EVIDENCE: ")), nil
}

// Calls returns the requests seen so far.
func (f *FakeBackend) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}
