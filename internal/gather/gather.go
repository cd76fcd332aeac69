// Package gather queries the selected evidence providers concurrently and
// collects whatever succeeds into one bundle.
package gather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"repolens/internal/evidence"
	"repolens/internal/fanout"
	"repolens/internal/repo"
)

// ErrNoEvidence is matched by *NoEvidenceError.
var ErrNoEvidence = errors.New("no evidence available")

// NoEvidenceError reports that every selected provider failed.
type NoEvidenceError struct {
	Attempted []string
	Failures  map[string]error
}

func (e *NoEvidenceError) Error() string {
	if len(e.Attempted) == 0 {
		return "no evidence available: no providers selected"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, name := range e.Attempted {
		if err := e.Failures[name]; err != nil {
			parts = append(parts, name+"="+evidence.KindOf(err))
		}
	}
	sort.Strings(parts)
	return fmt.Sprintf("no evidence available: all %d providers failed (%s)", len(e.Attempted), strings.Join(parts, ", "))
}

func (e *NoEvidenceError) Unwrap() error { return ErrNoEvidence }

// Options bounds a gather.
type Options struct {
	PerProvider time.Duration
	Deadline    time.Duration
	// Concurrency caps simultaneous provider calls; zero means one per provider.
	Concurrency int
}

// DefaultOptions match typical GitHub REST latency.
func DefaultOptions() Options {
	return Options{PerProvider: 10 * time.Second, Deadline: 45 * time.Second}
}

// Gatherer fans a request out to providers.
type Gatherer struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Gatherer. Zero durations fall back to DefaultOptions.
func New(opts Options, logger *zap.Logger) *Gatherer {
	def := DefaultOptions()
	if opts.PerProvider <= 0 {
		opts.PerProvider = def.PerProvider
	}
	if opts.Deadline <= 0 {
		opts.Deadline = def.Deadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatherer{opts: opts, logger: logger.Named("gather")}
}

// Gather calls each descriptor's fetcher once. Individual failures are
// recorded in the bundle; only when all fail is *NoEvidenceError returned.
// The call returns by the overall deadline regardless of provider behaviour.
func (g *Gatherer) Gather(ctx context.Context, ref repo.Ref, ds []evidence.Descriptor, p evidence.Params) (*evidence.Bundle, error) {
	return g.GatherWith(ctx, ref, ds, p, g.opts)
}

// GatherWith is Gather with per-request bounds.
func (g *Gatherer) GatherWith(ctx context.Context, ref repo.Ref, ds []evidence.Descriptor, p evidence.Params, opts Options) (*evidence.Bundle, error) {
	if opts.PerProvider <= 0 {
		opts.PerProvider = g.opts.PerProvider
	}
	if opts.Deadline <= 0 {
		opts.Deadline = g.opts.Deadline
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = g.opts.Concurrency
	}

	names := make([]string, 0, len(ds))
	tasks := make([]fanout.Task[evidence.Result], 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Name)
		tasks = append(tasks, fanout.Task[evidence.Result]{
			Name: d.Name,
			Run: func(ctx context.Context) (evidence.Result, error) {
				return d.Fetcher.Fetch(ctx, ref, p)
			},
		})
	}
	bundle := evidence.NewBundle(names)
	if len(tasks) == 0 {
		return bundle, &NoEvidenceError{}
	}

	progress := progressFrom(ctx)
	start := time.Now()
	outcomes := fanout.Run(ctx, tasks, fanout.Options{
		PerTask:  opts.PerProvider,
		Deadline: opts.Deadline,
		Limit:    opts.Concurrency,
		OnDone: func(name string, err error) {
			if progress != nil {
				progress(name, attribute(name, err))
			}
		},
	})
	for _, o := range outcomes {
		err := attribute(o.Name, o.Err)
		if err != nil {
			g.logger.Warn("provider failed",
				zap.String("provider", o.Name),
				zap.String("repo", ref.String()),
				zap.String("kind", evidence.KindOf(err)),
				zap.Error(err))
		}
		bundle.Record(o.Name, o.Value, err)
	}
	bundle.Seal()

	g.logger.Info("evidence gathered",
		zap.String("repo", ref.String()),
		zap.String("sources", bundle.Summary()),
		zap.Strings("missing", bundle.Missing()),
		zap.Duration("elapsed", time.Since(start)))

	if len(bundle.Succeeded) == 0 {
		return bundle, &NoEvidenceError{Attempted: bundle.Attempted, Failures: bundle.Failures}
	}
	return bundle, nil
}

// attribute assigns err to the provider and gives it an evidence kind.
func attribute(name string, err error) error {
	if err == nil {
		return nil
	}
	var perr *evidence.ProviderError
	if errors.As(err, &perr) {
		if errors.Is(err, fanout.ErrTimeout) && !errors.Is(err, evidence.ErrTimeout) {
			return evidence.NewProviderError(name, evidence.ErrTimeout, err)
		}
		return err
	}
	switch {
	case errors.Is(err, fanout.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return evidence.NewProviderError(name, evidence.ErrTimeout, err)
	case errors.Is(err, evidence.ErrNotFound), errors.Is(err, evidence.ErrRateLimited),
		errors.Is(err, evidence.ErrAuth), errors.Is(err, evidence.ErrTransient), errors.Is(err, evidence.ErrTimeout):
		return evidence.NewProviderError(name, kindOf(err), err)
	default:
		return evidence.NewProviderError(name, evidence.ErrTransient, err)
	}
}

func kindOf(err error) error {
	for _, k := range []error{evidence.ErrNotFound, evidence.ErrRateLimited, evidence.ErrAuth, evidence.ErrTimeout, evidence.ErrTransient} {
		if errors.Is(err, k) {
			return k
		}
	}
	return evidence.ErrTransient
}

// ProgressFunc observes each provider as it reaches a terminal state.
type ProgressFunc func(provider string, err error)

type ctxKeyProgress struct{}

// WithProgress attaches a ProgressFunc to ctx for Gather to report into.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, ctxKeyProgress{}, fn)
}

func progressFrom(ctx context.Context) ProgressFunc {
	if fn, ok := ctx.Value(ctxKeyProgress{}).(ProgressFunc); ok {
		return fn
	}
	return nil
}
