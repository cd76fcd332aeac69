// Package app wires configuration into a ready pipeline and its surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"repolens/internal/archive"
	"repolens/internal/cache"
	"repolens/internal/classify"
	"repolens/internal/config"
	"repolens/internal/evidence"
	"repolens/internal/gather"
	"repolens/internal/github"
	"repolens/internal/llm"
	"repolens/internal/mcpserver"
	"repolens/internal/pipeline"
	"repolens/internal/prompt"
	"repolens/internal/ratelimit"
	"repolens/internal/server"
	"repolens/internal/synth"
)

// Version is reported by the MCP server and the CLI.
var Version = "dev"

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pipeline *pipeline.Pipeline
	Reports  archive.Store
	Cache    *cache.Cache

	server     *server.Server
	serverOnce sync.Once
	closers    []io.Closer
}

// Options replace components built from config, mostly for tests.
type Options struct {
	// Descriptors replaces the GitHub providers.
	Descriptors []evidence.Descriptor
	// Backends replaces the configured LLM backends.
	Backends map[string]llm.Backend
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// New builds every component. On error, whatever was opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	ds := opts.Descriptors
	var throttle *ratelimit.Limiter
	if ds == nil {
		gh, err := github.NewClient(github.Options{
			Token:           cfg.GitHub.Token,
			BaseURL:         cfg.GitHub.BaseURL,
			RPS:             cfg.GitHub.RPS,
			Burst:           cfg.GitHub.Burst,
			MaxFileBytes:    cfg.GitHub.MaxFileBytes,
			MaxPayloadBytes: cfg.GitHub.MaxPayloadBytes,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gh)
		ds, throttle = gh.Descriptors(), gh.Limiter()
		if cfg.GitHub.Token == "" {
			logger.Warn("no GitHub token configured; unauthenticated rate limits apply")
		}
	}

	mws := []evidence.Middleware{}
	if cfg.Cache.Enabled {
		c, err := a.openCache(ctx)
		if err != nil {
			return nil, err
		}
		a.Cache = c
		mws = append(mws, c.Middleware())
	}
	mws = append(mws,
		evidence.WithLogging(logger.Named("evidence")),
		evidence.Retry(cfg.GitHub.Retries+1, cfg.GitHub.RetryBase),
		evidence.Throttle(throttle),
	)
	reg, err := evidence.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, d := range ds {
		if err := reg.Register(evidence.WrapDescriptor(d, mws...)); err != nil {
			return nil, err
		}
	}

	classifier, err := a.classifier(reg)
	if err != nil {
		return nil, err
	}

	syn, err := a.synthesizers(ctx, opts.Backends)
	if err != nil {
		return nil, err
	}

	if a.Reports, err = a.openArchive(ctx); err != nil {
		return nil, err
	}

	def := cfg.LLM.DefaultBackend()
	if opts.Backends != nil {
		if _, ok := syn[llm.Canonical(def)]; !ok {
			def = ""
		}
	}
	a.Pipeline, err = pipeline.New(pipeline.Config{
		Registry:   reg,
		Classifier: classifier,
		Gatherer: gather.New(gather.Options{
			PerProvider: cfg.Gather.PerProvider,
			Deadline:    cfg.Gather.Deadline,
			Concurrency: cfg.Gather.Concurrency,
		}, logger),
		Assembler:      prompt.New(prompt.WithLabels(reg.All()), prompt.WithMaxEvidenceBytes(cfg.Gather.MaxEvidenceBytes)),
		Synthesizers:   syn,
		DefaultBackend: def,
		Archive:        a.Reports,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openCache(ctx context.Context) (*cache.Cache, error) {
	cfg := a.Config.Cache
	tiers := []cache.Tier{cache.NewMemory(cache.Config{MaxEntries: cfg.MaxEntries, TTL: cfg.TTL})}
	if cfg.PostgresDSN != "" {
		pg, err := cache.OpenPostgres(ctx, cfg.PostgresDSN, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open evidence cache: %w", err)
		}
		a.closers = append(a.closers, pg)
		tiers = append(tiers, pg)
	}
	c := cache.New(a.Logger, tiers...)
	c.OriginTimeout = a.Config.Gather.PerProvider
	return c, nil
}

func (a *App) classifier(reg *evidence.Registry) (*classify.Classifier, error) {
	path := a.Config.Classifier.RulesFile
	if path == "" {
		return classify.New(), nil
	}
	f, err := classify.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}
	for _, name := range f.Providers() {
		if _, ok := reg.Get(name); !ok {
			a.Logger.Warn("classifier rules name an unknown provider", zap.String("provider", name), zap.String("file", path))
		}
	}
	return classify.New(f.Options()...), nil
}

func (a *App) synthesizers(ctx context.Context, override map[string]llm.Backend) (map[string]*synth.Synthesizer, error) {
	cfg := a.Config.LLM
	temperature := cfg.Temperature
	defaults := synth.Options{MaxTokens: cfg.MaxTokens, Temperature: &temperature, Timeout: cfg.Timeout}

	mws := []llm.Middleware{llm.WithHooks(), llm.WithLogging(a.Logger.Named("llm"))}
	if cfg.RPM > 0 {
		l := ratelimit.PerMinute(cfg.RPM)
		a.closers = append(a.closers, closerFunc(func() error { l.Stop(); return nil }))
		mws = append(mws, llm.RateLimit(l))
	}
	if cfg.Retries > 0 {
		mws = append(mws, llm.Retry(cfg.Retries+1, cfg.RetryBase))
	}

	out := map[string]*synth.Synthesizer{}
	if override != nil {
		for name, b := range override {
			out[name] = synth.New(llm.Wrap(b, mws...), defaults, a.Logger)
		}
		return out, nil
	}

	def := llm.Canonical(cfg.DefaultBackend())
	for _, name := range cfg.Enabled() {
		bc, _ := cfg.Backend(name)
		b, err := llm.Open(ctx, name, llm.Config{APIKey: bc.APIKey, Model: bc.Model, BaseURL: bc.BaseURL}, mws...)
		if err != nil {
			if name == def {
				return nil, err
			}
			a.Logger.Warn("llm backend unavailable", zap.String("backend", name), zap.Error(err))
			continue
		}
		a.closers = append(a.closers, b)
		o := defaults
		o.Model = bc.Model
		out[name] = synth.New(b, o, a.Logger)
	}
	if _, ok := out[def]; !ok {
		return nil, fmt.Errorf("llm backend %q is not configured; set its API key or choose one of %v", def, cfg.Enabled())
	}
	return out, nil
}

func (a *App) openArchive(ctx context.Context) (archive.Store, error) {
	cfg := a.Config.Archive
	var origin archive.Store
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return archive.NewMemoryStore(), nil
	case "postgres":
		pg, err := archive.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open report archive: %w", err)
		}
		a.closers = append(a.closers, pg)
		origin = pg
	case "s3":
		s3, err := archive.NewS3Store(archive.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("open report archive: %w", err)
		}
		origin = s3
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
	if cfg.CacheSize <= 0 {
		return origin, nil
	}
	cached, err := archive.NewCachedStore(origin, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return server.NewHandler(a.Pipeline, a.Reports, server.Options{AllowedOrigins: a.Config.Server.AllowedOrigins}, a.Logger)
}

// MCP returns the MCP tool server.
func (a *App) MCP() *mcpserver.Server {
	return mcpserver.New(a.Pipeline, Version, a.Logger)
}

// Server returns the HTTP server for the API, creating it on first use.
func (a *App) Server() *server.Server {
	a.serverOnce.Do(func() {
		a.server = server.New(a.Config.Server.Addr, a.Handler(), a.Logger)
	})
	return a.server
}

// Start serves the HTTP API and blocks until Shutdown.
func (a *App) Start() error {
	return a.Server().Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Server().Shutdown(ctx)
}

// Close releases clients and connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Cache != nil {
		m := a.Cache.Metrics()
		a.Logger.Debug("evidence cache", zap.Uint64("hits", m.Hits), zap.Uint64("misses", m.Misses), zap.Uint64("shared", m.Shared))
	}
	return errors.Join(errs...)
}
