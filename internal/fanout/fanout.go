// Package fanout runs independent operations concurrently under a per-task
// timeout and an overall deadline.
package fanout

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrTimeout is reported for a task that did not finish within its own
// timeout or before the overall deadline.
var ErrTimeout = errors.New("fanout: timed out")

// Task is one named unit of work.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Outcome is the terminal state of a task.
type Outcome[T any] struct {
	Name    string
	Value   T
	Err     error
	Elapsed time.Duration
}

// Options bounds a Run.
type Options struct {
	// PerTask caps each task; zero means only the deadline applies.
	PerTask time.Duration
	// Deadline caps the whole run; zero means only ctx applies.
	Deadline time.Duration
	// Limit caps concurrently running tasks; zero means no cap.
	Limit int
	// OnDone is called from the collecting goroutine as each outcome
	// arrives, including synthesized timeouts.
	OnDone func(name string, err error)
}

// Run starts every task and returns one outcome per task in input order.
// It returns no later than the deadline (or ctx cancellation) even when a
// task ignores its context; such tasks are reported as ErrTimeout and left
// to finish in the background.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options) []Outcome[T] {
	if len(tasks) == 0 {
		return nil
	}
	var (
		dctx   context.Context
		cancel context.CancelFunc
	)
	if opts.Deadline > 0 {
		dctx, cancel = context.WithTimeout(ctx, opts.Deadline)
	} else {
		dctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type indexed struct {
		idx int
		out Outcome[T]
	}
	// Buffered so abandoned tasks never block on send.
	results := make(chan indexed, len(tasks))

	g, gctx := errgroup.WithContext(dctx)
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}
	go func() {
		for i, t := range tasks {
			g.Go(func() error {
				results <- indexed{idx: i, out: runOne(gctx, t, opts.PerTask)}
				return nil
			})
		}
		_ = g.Wait()
	}()

	outcomes := make([]Outcome[T], len(tasks))
	done := make([]bool, len(tasks))
	received := 0
collect:
	for received < len(tasks) {
		select {
		case r := <-results:
			outcomes[r.idx] = r.out
			done[r.idx] = true
			received++
			if opts.OnDone != nil {
				opts.OnDone(r.out.Name, r.out.Err)
			}
		case <-dctx.Done():
			break collect
		}
	}

	if received < len(tasks) {
		// Drain anything that landed while the deadline fired.
		for {
			select {
			case r := <-results:
				if !done[r.idx] {
					outcomes[r.idx] = r.out
					done[r.idx] = true
					if opts.OnDone != nil {
						opts.OnDone(r.out.Name, r.out.Err)
					}
				}
				continue
			default:
			}
			break
		}
		late := ErrTimeout
		if ctx.Err() != nil {
			late = ctx.Err()
		}
		for i, t := range tasks {
			if done[i] {
				continue
			}
			outcomes[i] = Outcome[T]{Name: t.Name, Err: late}
			if opts.OnDone != nil {
				opts.OnDone(t.Name, late)
			}
		}
	}
	return outcomes
}

func runOne[T any](ctx context.Context, t Task[T], perTask time.Duration) Outcome[T] {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Outcome[T]{Name: t.Name, Err: ErrTimeout}
	}
	var (
		tctx   context.Context
		cancel context.CancelFunc
	)
	if perTask > 0 {
		tctx, cancel = context.WithTimeout(ctx, perTask)
	} else {
		tctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type res struct {
		v   T
		err error
	}
	ch := make(chan res, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- res{err: &PanicError{Task: t.Name, Value: p}}
			}
		}()
		v, err := t.Run(tctx)
		ch <- res{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && tctx.Err() != nil {
			r.err = errors.Join(ErrTimeout, r.err)
		}
		return Outcome[T]{Name: t.Name, Value: r.v, Err: r.err, Elapsed: time.Since(start)}
	case <-tctx.Done():
		return Outcome[T]{Name: t.Name, Err: errors.Join(ErrTimeout, tctx.Err()), Elapsed: time.Since(start)}
	}
}
