package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
)

// Config configures one backend.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Factory builds a backend from its config.
type Factory func(ctx context.Context, cfg Config) (Backend, error)

var factories = map[string]Factory{
	"groq":   func(_ context.Context, cfg Config) (Backend, error) { return NewGroqClient(cfg), nil },
	"openai": func(_ context.Context, cfg Config) (Backend, error) { return NewOpenAIClient(cfg), nil },
	"claude": func(_ context.Context, cfg Config) (Backend, error) { return NewClaudeClient(cfg), nil },
	"gemini": func(ctx context.Context, cfg Config) (Backend, error) { return NewGeminiClient(ctx, cfg) },
	"ollama": func(_ context.Context, cfg Config) (Backend, error) { return NewOllamaClient(cfg) },
	"fake":   func(context.Context, Config) (Backend, error) { return NewFakeBackend(), nil },
}

var aliases = map[string]string{
	"anthropic": "claude",
	"google":    "gemini",
	"offline":   "fake",
}

// Backends lists the names Open accepts.
func Backends() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Canonical folds a backend name to the form Open uses.
func Canonical(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// Open builds the named backend wrapped in mws.
func Open(ctx context.Context, name string, cfg Config, mws ...Middleware) (Backend, error) {
	f, ok := factories[Canonical(name)]
	if !ok {
		return nil, fmt.Errorf("llm: unknown backend %q (known: %s)", name, strings.Join(Backends(), ", "))
	}
	b, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: open %s: %w", name, err)
	}
	return Wrap(b, mws...), nil
}
