// Package prompt renders an evidence bundle and a request into the single
// text prompt sent to a language model.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"repolens/internal/classify"
	"repolens/internal/evidence"
	"repolens/internal/repo"
)

// ErrNoEvidence is returned when no section could be rendered.
var ErrNoEvidence = errors.New("prompt: bundle has no usable evidence")

// DefaultMaxEvidenceBytes bounds the evidence part of a prompt.
const DefaultMaxEvidenceBytes = 60000

// Request is the part of an analysis request the prompt needs.
type Request struct {
	Repo         repo.Ref
	Question     string
	AnalysisType string
}

// Prompt is the assembled text plus the providers whose evidence it includes,
// in the order they appear.
type Prompt struct {
	Text          string
	ProvidersUsed []string
	// Omitted lists providers that succeeded but got no share of the
	// evidence budget.
	Omitted  []string
	Template string
}

// Assembler is safe for concurrent use once built.
type Assembler struct {
	templates map[string]Template
	labels    map[string]string
	maxBytes  int
}

type Option func(*Assembler)

// WithTemplates overrides or adds templates by name.
func WithTemplates(ts ...Template) Option {
	return func(a *Assembler) {
		for _, t := range ts {
			a.templates[t.Name] = t
		}
	}
}

// WithLabels uses descriptor labels in provider headings.
func WithLabels(ds []evidence.Descriptor) Option {
	return func(a *Assembler) {
		for _, d := range ds {
			if d.Label != "" {
				a.labels[d.Name] = d.Label
			}
		}
	}
}

// WithMaxEvidenceBytes caps the combined payload size. Zero keeps the default.
func WithMaxEvidenceBytes(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxBytes = n
		}
	}
}

func New(opts ...Option) *Assembler {
	a := &Assembler{
		templates: make(map[string]Template, len(DefaultTemplates)),
		labels:    map[string]string{},
		maxBytes:  DefaultMaxEvidenceBytes,
	}
	for name, t := range DefaultTemplates {
		a.templates[name] = t
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Template returns the template for an analysis type, falling back to the
// question template.
func (a *Assembler) Template(analysisType string) Template {
	if t, ok := a.templates[classify.NormalizeType(analysisType)]; ok {
		return t
	}
	return a.templates[QuestionTemplate]
}

// Assemble renders b for req. Output depends only on its inputs.
func (a *Assembler) Assemble(b *evidence.Bundle, req Request) (Prompt, error) {
	if b == nil || len(b.Succeeded) == 0 {
		return Prompt{}, ErrNoEvidence
	}
	tmpl := a.Template(req.AnalysisType)

	type group struct {
		header    string
		providers []string
	}
	var (
		groups []group
		order  []string
		seen   = map[string]bool{}
	)
	collect := func(header string, providers []string) {
		var g []string
		for _, name := range providers {
			if _, ok := b.Results[name]; !ok || seen[name] {
				continue
			}
			seen[name] = true
			g = append(g, name)
		}
		if len(g) > 0 {
			groups = append(groups, group{header, g})
			order = append(order, g...)
		}
	}
	for _, s := range tmpl.Sections {
		collect(s.Header, s.Providers)
	}
	var extra []string
	for _, name := range b.Succeeded {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	collect("Additional evidence", extra)

	payloads := make(map[string]string, len(order))
	for _, name := range order {
		payloads[name] = strings.TrimRight(b.Results[name].Payload, "\n")
	}
	shares := allocate(order, payloads, a.maxBytes)

	var (
		ev       bytes.Buffer
		used     []string
		omitted  []string
		rendered = 0
	)
	for _, g := range groups {
		var body strings.Builder
		for _, name := range g.providers {
			full := payloads[name]
			payload, clipped := clipBytes(full, shares[name])
			if payload == "" && full != "" {
				omitted = append(omitted, name)
				continue
			}
			used = append(used, name)
			fmt.Fprintf(&body, "### %s (%s)\n", a.label(name), name)
			body.WriteString(payload)
			body.WriteString("\n")
			if b.Results[name].Truncated || clipped {
				body.WriteString("(truncated)\n")
			}
		}
		if body.Len() == 0 {
			continue
		}
		rendered++
		writeSection(&ev, "EVIDENCE: "+g.header, body.String())
	}

	if rendered == 0 {
		return Prompt{}, ErrNoEvidence
	}

	var buf bytes.Buffer
	writeSection(&buf, "TASK", formatList(tmpl.Instructions))
	writeSection(&buf, "REPOSITORY", fmt.Sprintf("%s (%s)", req.Repo, req.Repo.URL()))
	if q := strings.TrimSpace(req.Question); q != "" {
		writeSection(&buf, "QUESTION", q)
	} else if tmpl.Name == QuestionTemplate {
		writeSection(&buf, "QUESTION", "Give an overview of this repository.")
	} else {
		writeSection(&buf, "QUESTION", fmt.Sprintf("Perform a %s analysis of this repository.", strings.ReplaceAll(tmpl.Name, "_", " ")))
	}
	writeSection(&buf, "SOURCES", fmt.Sprintf("%d of %d sources available", len(used), len(b.Attempted)))
	buf.Write(ev.Bytes())
	writeSection(&buf, "UNAVAILABLE SOURCES", a.unavailable(b, omitted))
	writeSection(&buf, "RULES", formatList(answerRules))

	return Prompt{
		Text:          strings.TrimSpace(buf.String()) + "\n",
		ProvidersUsed: used,
		Omitted:       omitted,
		Template:      tmpl.Name,
	}, nil
}

func (a *Assembler) label(name string) string {
	if l, ok := a.labels[name]; ok {
		return l
	}
	return name
}

func (a *Assembler) unavailable(b *evidence.Bundle, omitted []string) string {
	var lines []string
	for _, name := range b.Missing() {
		kind := evidence.KindOf(b.Failures[name])
		if kind == "" {
			kind = "unavailable"
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", a.label(name), kind))
	}
	for _, name := range omitted {
		lines = append(lines, fmt.Sprintf("%s (omitted: budget)", a.label(name)))
	}
	return formatList(lines)
}

// allocate splits budget across names so that payloads smaller than an
// even share keep all their bytes and the rest is shared by the larger ones.
func allocate(names []string, payloads map[string]string, budget int) map[string]int {
	bySize := append([]string(nil), names...)
	sort.SliceStable(bySize, func(i, j int) bool {
		return len(payloads[bySize[i]]) < len(payloads[bySize[j]])
	})
	shares := make(map[string]int, len(names))
	for i, name := range bySize {
		left := len(bySize) - i
		share := (budget + left - 1) / left
		if n := len(payloads[name]); n < share {
			share = n
		}
		shares[name] = share
		budget -= share
	}
	return shares
}

// clipBytes cuts s to at most n bytes on a rune boundary.
func clipBytes(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}
