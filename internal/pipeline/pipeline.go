// Package pipeline answers questions about a repository: it classifies the
// request, gathers evidence in parallel, assembles a prompt and synthesizes
// an answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repolens/internal/archive"
	"repolens/internal/classify"
	"repolens/internal/evidence"
	"repolens/internal/gather"
	"repolens/internal/llm"
	"repolens/internal/prompt"
	"repolens/internal/repo"
	"repolens/internal/synth"
)

// Config wires a Pipeline. Registry and at least one synthesizer are
// required; nil components get defaults.
type Config struct {
	Registry       *evidence.Registry
	Classifier     *classify.Classifier
	Gatherer       *gather.Gatherer
	Assembler      *prompt.Assembler
	Synthesizers   map[string]*synth.Synthesizer
	DefaultBackend string
	// Archive stores every answer when set. Failures are logged only.
	Archive archive.Store
	Logger  *zap.Logger
}

type Pipeline struct {
	registry       *evidence.Registry
	classifier     *classify.Classifier
	gatherer       *gather.Gatherer
	assembler      *prompt.Assembler
	synthesizers   map[string]*synth.Synthesizer
	defaultBackend string
	archive        archive.Store
	logger         *zap.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Registry == nil || len(cfg.Registry.Names()) == 0 {
		return nil, errors.New("pipeline: registry has no providers")
	}
	if len(cfg.Synthesizers) == 0 {
		return nil, errors.New("pipeline: no synthesizer configured")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	syn := make(map[string]*synth.Synthesizer, len(cfg.Synthesizers))
	for name, s := range cfg.Synthesizers {
		if s != nil {
			syn[llm.Canonical(name)] = s
		}
	}
	def := llm.Canonical(cfg.DefaultBackend)
	if def == "" && len(syn) == 1 {
		for name := range syn {
			def = name
		}
	}
	if _, ok := syn[def]; !ok {
		return nil, fmt.Errorf("pipeline: default backend %q is not configured", cfg.DefaultBackend)
	}
	p := &Pipeline{
		registry:       cfg.Registry,
		classifier:     cfg.Classifier,
		gatherer:       cfg.Gatherer,
		assembler:      cfg.Assembler,
		synthesizers:   syn,
		defaultBackend: def,
		archive:        cfg.Archive,
		logger:         logger.Named("pipeline"),
	}
	if p.classifier == nil {
		p.classifier = classify.New()
	}
	if p.gatherer == nil {
		p.gatherer = gather.New(gather.DefaultOptions(), logger)
	}
	if p.assembler == nil {
		p.assembler = prompt.New(prompt.WithLabels(cfg.Registry.All()))
	}
	return p, nil
}

// Backends lists the configured backend names, sorted.
func (p *Pipeline) Backends() []string {
	out := make([]string, 0, len(p.synthesizers))
	for name := range p.synthesizers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Providers returns the full catalogue.
func (p *Pipeline) Providers() []evidence.Descriptor { return p.registry.All() }

// Plan is the provider selection for a request.
type Plan struct {
	Selection   classify.Selection
	Descriptors []evidence.Descriptor
}

// Names lists the planned providers in order.
func (pl Plan) Names() []string {
	out := make([]string, len(pl.Descriptors))
	for i, d := range pl.Descriptors {
		out[i] = d.Name
	}
	return out
}

// Explain returns the providers Answer would query for req without
// calling any of them.
func (p *Pipeline) Explain(req Request) ([]evidence.Descriptor, error) {
	pl, err := p.Plan(req)
	if err != nil {
		return nil, err
	}
	return pl.Descriptors, nil
}

// Plan classifies req and resolves the selection against the registry.
// The repository is not needed. The result is never empty.
func (p *Pipeline) Plan(req Request) (Plan, error) {
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return Plan{}, err
	}
	if len(req.Question) > maxQuestionBytes {
		return Plan{}, fmt.Errorf("%w: question longer than %d bytes", ErrInvalidRequest, maxQuestionBytes)
	}
	sel, err := p.classifier.Classify(classify.Input{Question: req.Question, AnalysisType: req.AnalysisType})
	if err != nil {
		// Classification failure is recoverable: sel is the default set.
		p.logger.Warn("classification fell back to default providers",
			zap.String("analysis_type", req.AnalysisType), zap.Error(err))
	}
	ds := p.resolve(sel.Providers)
	if len(ds) == 0 {
		def := p.classifier.Default()
		ds = p.resolve(def.Providers)
		sel.Source = classify.SourceDefault
		if len(ds) == 0 {
			ds = p.registry.All()
		}
	}
	pl := Plan{Selection: sel, Descriptors: ds}
	pl.Selection.Providers = pl.Names()
	return pl, nil
}

func (p *Pipeline) resolve(names []string) []evidence.Descriptor {
	ds, err := p.registry.Resolve(names)
	if err != nil {
		p.logger.Warn("dropping unknown providers", zap.Error(err))
	}
	return ds
}

// Answer runs the full pipeline for req. Provider failures are tolerated
// and reported in Answer.Missing; only when nothing could be gathered does
// it return an error matching ErrNoEvidence. Backend failures are returned
// as *synth.SynthesisError.
func (p *Pipeline) Answer(ctx context.Context, req Request) (synth.Answer, error) {
	id := uuid.NewString()
	emit := observerFrom(ctx)
	start := time.Now()
	log := p.logger.With(zap.String("request_id", id), zap.String("repo", req.Repo.String()))

	fail := func(err error) (synth.Answer, error) {
		emit(Event{Kind: EventFailed, RequestID: id, Code: Kind(err), Message: err.Error()})
		log.Info("answer failed", zap.String("code", Kind(err)), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return synth.Answer{}, err
	}

	if err := req.validate(); err != nil {
		return fail(err)
	}
	syn, err := p.synthesizer(req.Backend)
	if err != nil {
		return fail(err)
	}

	pl, err := p.Plan(req)
	if err != nil {
		return fail(err)
	}
	emit(Event{Kind: EventClassified, RequestID: id, Providers: pl.Names(), Source: string(pl.Selection.Source)})

	mc := req.mode()
	params := req.params(mc, pl.Selection.Paths, pl.Selection.SearchTerms)
	gctx := gather.WithProgress(ctx, func(name string, err error) {
		emit(Event{Kind: EventProviderDone, RequestID: id, Provider: name, OK: err == nil, ErrorKind: evidence.KindOf(err)})
	})
	bundle, err := p.gatherer.GatherWith(gctx, req.Repo, pl.Descriptors, params, gather.Options{Deadline: mc.Deadline})
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	if err != nil {
		return fail(err)
	}

	pr, err := p.assembler.Assemble(bundle, prompt.Request{
		Repo:         req.Repo,
		Question:     req.Question,
		AnalysisType: pl.Selection.AnalysisType,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoEvidence, err))
	}

	emit(Event{Kind: EventSynthesizing, RequestID: id, Sources: bundle.Summary()})
	ans, err := syn.Synthesize(ctx, pr, synth.Options{Model: req.Model})
	if err != nil {
		return fail(err)
	}
	ans.ID = id
	ans.Missing = append(bundle.Missing(), pr.Omitted...)

	p.store(ctx, log, req, ans)
	emit(Event{Kind: EventAnswered, RequestID: id, Sources: bundle.Summary(), Answer: &ans})
	log.Info("answered",
		zap.String("sources", bundle.Summary()),
		zap.Strings("providers_used", ans.ProvidersUsed),
		zap.String("backend", ans.Backend),
		zap.Duration("elapsed", time.Since(start)))
	return ans, nil
}

func (p *Pipeline) synthesizer(backend string) (*synth.Synthesizer, error) {
	name := llm.Canonical(backend)
	if name == "" {
		name = p.defaultBackend
	}
	s, ok := p.synthesizers[name]
	if !ok {
		return nil, fmt.Errorf("%w: backend %q is not configured (available: %s)",
			ErrInvalidRequest, backend, strings.Join(p.Backends(), ", "))
	}
	return s, nil
}

func (p *Pipeline) store(ctx context.Context, log *zap.Logger, req Request, ans synth.Answer) {
	if p.archive == nil {
		return
	}
	err := p.archive.Put(context.WithoutCancel(ctx), archive.Report{
		ID:            ans.ID,
		Repo:          req.Repo.String(),
		Question:      req.Question,
		AnalysisType:  req.AnalysisType,
		Text:          ans.Text,
		ProvidersUsed: ans.ProvidersUsed,
		Missing:       ans.Missing,
		Backend:       ans.Backend,
		Model:         ans.Model,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Warn("archiving answer failed", zap.Error(err))
	}
}

// ParseRepo parses a repository reference, reporting failures as
// ErrInvalidRequest.
func ParseRepo(raw string) (repo.Ref, error) {
	ref, err := repo.Parse(raw)
	if err != nil {
		return repo.Ref{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return ref, nil
}
