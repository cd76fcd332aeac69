package evidence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"repolens/internal/ratelimit"
	"repolens/internal/repo"
)

// Middleware decorates a Fetcher with a cross-cutting concern.
type Middleware func(name string, next Fetcher) Fetcher

// Wrap applies middlewares left to right: Wrap(f, n, A, B) => A(B(f)).
func Wrap(inner Fetcher, name string, mws ...Middleware) Fetcher {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](name, out)
		}
	}
	return out
}

// WrapDescriptor returns d with its fetcher wrapped.
func WrapDescriptor(d Descriptor, mws ...Middleware) Descriptor {
	d.Fetcher = Wrap(d.Fetcher, d.Name, mws...)
	return d
}

// Retry re-invokes a fetcher on transient and rate-limit failures with
// exponential backoff. Not found and auth failures return immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	return func(_ string, next Fetcher) Fetcher {
		return FetcherFunc(func(ctx context.Context, ref repo.Ref, p Params) (Result, error) {
			var last error
			for i := 0; i < maxAttempts; i++ {
				res, err := next.Fetch(ctx, ref, p)
				if err == nil {
					return res, nil
				}
				last = err
				if !Retryable(err) || i == maxAttempts-1 {
					break
				}
				t := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					t.Stop()
					return Result{}, last
				case <-t.C:
				}
			}
			return Result{}, last
		})
	}
}

// Throttle makes every call take a token from l first.
func Throttle(l *ratelimit.Limiter) Middleware {
	return func(name string, next Fetcher) Fetcher {
		if l == nil {
			return next
		}
		return FetcherFunc(func(ctx context.Context, ref repo.Ref, p Params) (Result, error) {
			if err := l.Wait(ctx); err != nil {
				return Result{}, NewProviderError(name, ErrTimeout, err)
			}
			return next.Fetch(ctx, ref, p)
		})
	}
}

// WithLogging logs each fetch outcome at debug, failures at warn.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(name string, next Fetcher) Fetcher {
		return FetcherFunc(func(ctx context.Context, ref repo.Ref, p Params) (Result, error) {
			start := time.Now()
			res, err := next.Fetch(ctx, ref, p)
			fields := []zap.Field{
				zap.String("provider", name),
				zap.String("repo", ref.String()),
				zap.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				logger.Warn("provider failed", append(fields, zap.String("kind", KindOf(err)), zap.Error(err))...)
				return res, err
			}
			logger.Debug("provider ok", append(fields, zap.Int("bytes", len(res.Payload)), zap.Bool("truncated", res.Truncated))...)
			return res, nil
		})
	}
}
