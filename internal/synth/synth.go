// Package synth turns an assembled prompt into an answer using a language
// model backend.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"repolens/internal/llm"
	"repolens/internal/prompt"
)

// DefaultTimeout bounds one backend call.
const DefaultTimeout = 60 * time.Second

const systemPrompt = "You are a software analyst answering questions about a GitHub repository. " +
	"Use only the evidence provided and be explicit about gaps."

// Answer is the synthesized text plus the providers that fed it.
type Answer struct {
	ID            string   `json:"id,omitempty"`
	Text          string   `json:"text"`
	ProvidersUsed []string `json:"providers_used"`
	Missing       []string `json:"missing,omitempty"`
	Backend       string   `json:"backend"`
	Model         string   `json:"model,omitempty"`
}

// SynthesisError reports a failed backend call.
type SynthesisError struct {
	Backend string
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis via %s failed: %v", e.Backend, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Options tunes one call. Zero values use the synthesizer defaults; a nil
// Temperature does too, so an explicit 0 asks for deterministic output.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float32
	Timeout     time.Duration
}

// Synthesizer makes exactly one backend call per Synthesize.
type Synthesizer struct {
	backend  llm.Backend
	defaults Options
	logger   *zap.Logger
}

func New(backend llm.Backend, defaults Options, logger *zap.Logger) *Synthesizer {
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = llm.DefaultMaxTokens
	}
	if defaults.Temperature == nil {
		t := float32(llm.DefaultTemperature)
		defaults.Temperature = &t
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{backend: backend, defaults: defaults, logger: logger.Named("synth")}
}

// Backend reports the name of the wrapped backend.
func (s *Synthesizer) Backend() string { return s.backend.Name() }

// Synthesize sends p to the backend. It never returns an empty answer
// without an error.
func (s *Synthesizer) Synthesize(ctx context.Context, p prompt.Prompt, opts Options) (Answer, error) {
	o := s.merge(opts)
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.backend.Generate(ctx, llm.Request{
		Prompt:      p.Text,
		System:      systemPrompt,
		Model:       o.Model,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		s.logger.Warn("synthesis failed",
			zap.String("backend", s.backend.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Answer{}, &SynthesisError{Backend: s.backend.Name(), Err: err}
	}
	s.logger.Debug("synthesized",
		zap.String("backend", s.backend.Name()),
		zap.Int("answer_bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return Answer{
		Text:          strings.TrimSpace(text),
		ProvidersUsed: append([]string(nil), p.ProvidersUsed...),
		Backend:       s.backend.Name(),
		Model:         o.Model,
	}, nil
}

func (s *Synthesizer) merge(o Options) Options {
	if o.Model == "" {
		o.Model = s.defaults.Model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = s.defaults.MaxTokens
	}
	if o.Temperature == nil {
		o.Temperature = s.defaults.Temperature
	}
	if o.Timeout <= 0 {
		o.Timeout = s.defaults.Timeout
	}
	return o
}

// Timeout reports whether err came from the synthesis deadline.
func Timeout(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se) && errors.Is(se.Err, context.DeadlineExceeded)
}
