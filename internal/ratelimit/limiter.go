package ratelimit

import (
	"context"
	"time"
)

// Limiter is a token bucket that admits at most rps events per second with
// an initial burst. A nil *Limiter admits everything.
type Limiter struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// New returns nil when rps <= 0, which disables limiting.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	l := &Limiter{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
				}
			case <-l.stopCh:
				return
			}
		}
	}()
	return l
}

// PerMinute builds a limiter from a requests-per-minute budget.
func PerMinute(rpm int) *Limiter {
	if rpm <= 0 {
		return nil
	}
	return New(float64(rpm)/60.0, rpm)
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return context.Canceled
	case <-l.tokens:
		return nil
	}
}

// WaitN takes n tokens in sequence.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates the refill goroutine.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}
