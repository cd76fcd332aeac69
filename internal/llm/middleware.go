package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"repolens/internal/ratelimit"
)

// Middleware decorates a Backend with a cross-cutting concern.
type Middleware func(Backend) Backend

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Backend, mws ...Middleware) Backend {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

type wrapped struct {
	next Backend
	gen  func(ctx context.Context, req Request) (string, error)
}

func (w *wrapped) Name() string { return w.next.Name() }
func (w *wrapped) Close() error { return w.next.Close() }
func (w *wrapped) Generate(ctx context.Context, req Request) (string, error) {
	return w.gen(ctx, req)
}

// RateLimit waits on l before each call. A nil limiter disables it.
func RateLimit(l *ratelimit.Limiter) Middleware {
	return func(next Backend) Backend {
		return &wrapped{next: next, gen: func(ctx context.Context, req Request) (string, error) {
			if err := l.Wait(ctx); err != nil {
				return "", err
			}
			return next.Generate(ctx, req)
		}}
	}
}

// Retry retries up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Backend) Backend {
		return &wrapped{next: next, gen: func(ctx context.Context, req Request) (string, error) {
			var last error
			for i := 0; i < maxAttempts; i++ {
				out, err := next.Generate(ctx, req)
				if err == nil {
					return out, nil
				}
				last = err
				if IsPermanent(err) || ctx.Err() != nil {
					return "", err
				}
				if i == maxAttempts-1 {
					break
				}
				t := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					t.Stop()
					return "", ctx.Err()
				case <-t.C:
				}
			}
			return "", last
		}}
	}
}

// WithLogging logs request size, latency and errors.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Backend) Backend {
		return &wrapped{next: next, gen: func(ctx context.Context, req Request) (string, error) {
			start := time.Now()
			out, err := next.Generate(ctx, req)
			fields := []zap.Field{
				zap.String("backend", next.Name()),
				zap.String("model", req.Model),
				zap.Int("prompt_bytes", len(req.Prompt)),
				zap.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				logger.Warn("llm request failed", append(fields, zap.Error(err))...)
				return out, err
			}
			logger.Debug("llm request", append(fields, zap.Int("response_bytes", len(out)))...)
			return out, nil
		}}
	}
}

// WithHooks calls HookFrom(ctx).Before/After around Generate.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next Backend) Backend {
		return &wrapped{next: next, gen: func(ctx context.Context, req Request) (string, error) {
			hook := HookFrom(ctx)
			if hook != nil {
				hook.Before(ctx, next.Name(), req)
			}
			out, err := next.Generate(ctx, req)
			if hook != nil {
				hook.After(ctx, next.Name(), out, err)
			}
			return out, err
		}}
	}
}
