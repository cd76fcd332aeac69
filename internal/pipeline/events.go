package pipeline

import (
	"context"

	"repolens/internal/synth"
)

type EventKind string

const (
	EventClassified   EventKind = "classified"
	EventProviderDone EventKind = "provider_done"
	EventSynthesizing EventKind = "synthesizing"
	EventAnswered     EventKind = "answered"
	EventFailed       EventKind = "failed"
)

// Event reports progress of one Answer call. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	RequestID string    `json:"request_id"`

	Providers []string `json:"providers,omitempty"`
	Source    string   `json:"source,omitempty"`

	Provider  string `json:"provider,omitempty"`
	OK        bool   `json:"ok,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	Sources string        `json:"sources,omitempty"`
	Answer  *synth.Answer `json:"answer,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Observer receives events in order from the goroutine running Answer.
type Observer func(Event)

type ctxKeyObserver struct{}

// WithObserver attaches an Observer to ctx for Answer to report into.
func WithObserver(ctx context.Context, o Observer) context.Context {
	return context.WithValue(ctx, ctxKeyObserver{}, o)
}

func observerFrom(ctx context.Context) Observer {
	if o, ok := ctx.Value(ctxKeyObserver{}).(Observer); ok && o != nil {
		return o
	}
	return func(Event) {}
}
