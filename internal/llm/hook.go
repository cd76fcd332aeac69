package llm

import "context"

// Hook observes generation calls made with a context carrying it.
type Hook interface {
	Before(ctx context.Context, backend string, req Request)
	After(ctx context.Context, backend, text string, err error)
}

// HookFuncs adapts plain functions to Hook. Nil fields are skipped.
type HookFuncs struct {
	OnBefore func(ctx context.Context, backend string, req Request)
	OnAfter  func(ctx context.Context, backend, text string, err error)
}

func (h HookFuncs) Before(ctx context.Context, backend string, req Request) {
	if h.OnBefore != nil {
		h.OnBefore(ctx, backend, req)
	}
}

func (h HookFuncs) After(ctx context.Context, backend, text string, err error) {
	if h.OnAfter != nil {
		h.OnAfter(ctx, backend, text, err)
	}
}

type ctxKeyHook struct{}

// WithHook attaches a Hook to ctx for the WithHooks middleware.
func WithHook(ctx context.Context, hook Hook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) Hook {
	if h, ok := ctx.Value(ctxKeyHook{}).(Hook); ok {
		return h
	}
	return nil
}
