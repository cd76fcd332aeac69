package main

import (
	"context"
	"io"
	"strings"

	"github.com/fatih/color"

	"repolens/internal/llm"
	"repolens/internal/pipeline"
)

// progress prints pipeline events as coloured status lines.
type progress struct {
	w     io.Writer
	Step  *color.Color
	OK    *color.Color
	Warn  *color.Color
	Error *color.Color
	Faint *color.Color
}

func newProgress(w io.Writer) *progress {
	return &progress{
		w:     w,
		Step:  color.New(color.FgCyan, color.Bold),
		OK:    color.New(color.FgGreen),
		Warn:  color.New(color.FgYellow),
		Error: color.New(color.FgRed, color.Bold),
		Faint: color.New(color.Faint),
	}
}

func (p *progress) observe(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventClassified:
		p.Step.Fprintf(p.w, "==> ")
		p.Faint.Fprintf(p.w, "%s selection: %s\n", e.Source, strings.Join(e.Providers, ", "))
	case pipeline.EventProviderDone:
		if e.OK {
			p.OK.Fprintf(p.w, "  ok   %s\n", e.Provider)
		} else {
			p.Warn.Fprintf(p.w, "  miss %s (%s)\n", e.Provider, e.ErrorKind)
		}
	case pipeline.EventSynthesizing:
		p.Step.Fprintf(p.w, "==> ")
		p.Faint.Fprintf(p.w, "synthesizing from %s\n", e.Sources)
	case pipeline.EventFailed:
		p.Error.Fprintf(p.w, "error [%s]: %s\n", e.Code, e.Message)
	}
}

// hook reports which backend and model are being called.
func (p *progress) hook() llm.Hook {
	return llm.HookFuncs{
		OnBefore: func(_ context.Context, backend string, req llm.Request) {
			if req.Model != "" {
				backend += "/" + req.Model
			}
			p.Faint.Fprintf(p.w, "     calling %s\n", backend)
		},
	}
}
