// Package classify decides which evidence providers can answer a request.
package classify

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"repolens/internal/evidence"
)

// Source records how a selection was made.
type Source string

const (
	SourcePreset  Source = "preset"
	SourceKeyword Source = "keyword"
	SourceDefault Source = "default"
)

// ErrClassification marks recoverable classification failures. Callers
// substitute the default selection and continue.
var ErrClassification = errors.New("classification failed")

// UnknownAnalysisTypeError is returned for tags with no preset.
type UnknownAnalysisTypeError struct {
	Tag   string
	Known []string
}

func (e *UnknownAnalysisTypeError) Error() string {
	return fmt.Sprintf("unknown analysis type %q (known: %s)", e.Tag, strings.Join(e.Known, ", "))
}

func (e *UnknownAnalysisTypeError) Unwrap() error { return ErrClassification }

// Input is what the classifier looks at.
type Input struct {
	Question     string
	AnalysisType string
}

// Selection is the classifier's verdict. Providers is never empty.
type Selection struct {
	Providers    []string `json:"providers"`
	Source       Source   `json:"source"`
	Rule         string   `json:"rule,omitempty"`
	AnalysisType string   `json:"analysis_type,omitempty"`
	SearchTerms  []string `json:"search_terms,omitempty"`
	Paths        []string `json:"paths,omitempty"`
}

// Classifier holds an ordered rule table and the analysis-type presets.
type Classifier struct {
	rules    []Rule
	presets  map[string]Preset
	fallback []string
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithRules replaces the keyword rule table.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// WithPresets merges extra presets over the defaults.
func WithPresets(presets map[string]Preset) Option {
	return func(c *Classifier) {
		for k, v := range presets {
			if len(v.Providers) > 0 {
				c.presets[NormalizeType(k)] = v
			}
		}
	}
}

// WithDefault replaces the general question provider set.
func WithDefault(providers []string) Option {
	return func(c *Classifier) {
		if len(providers) > 0 {
			c.fallback = providers
		}
	}
}

// New builds a classifier over the built-in tables.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:    DefaultRules,
		presets:  make(map[string]Preset, len(DefaultPresets)),
		fallback: DefaultProviders,
	}
	for k, v := range DefaultPresets {
		c.presets[k] = v
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Default is the selection used when nothing more specific applies.
func (c *Classifier) Default() Selection {
	return Selection{Providers: dedupe(c.fallback), Source: SourceDefault}
}

// AnalysisTypes lists the known preset names, sorted.
func (c *Classifier) AnalysisTypes() []string {
	out := make([]string, 0, len(c.presets))
	for k := range c.presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Classify resolves in this order: a known analysis-type preset, the first
// keyword rule that intersects the question, then the default set. An
// unknown tag returns the default selection together with
// *UnknownAnalysisTypeError so the caller can log and continue.
func (c *Classifier) Classify(in Input) (Selection, error) {
	paths := ExtractPaths(in.Question)

	tag := NormalizeType(in.AnalysisType)
	if !isQuestionTag(tag) {
		p, ok := c.presets[tag]
		if !ok {
			sel := c.Default()
			sel.Paths, sel.SearchTerms = paths, searchTerms(in.Question, nil)
			return sel, &UnknownAnalysisTypeError{Tag: in.AnalysisType, Known: c.AnalysisTypes()}
		}
		return searchable(Selection{
			Providers:    dedupe(p.Providers),
			Source:       SourcePreset,
			AnalysisType: tag,
			SearchTerms:  searchTerms(in.Question, p.SearchTerms),
			Paths:        paths,
		}), nil
	}

	tokens := Tokenize(in.Question)
	if r, ok := c.match(tokens); ok {
		return searchable(Selection{
			Providers:   dedupe(r.Providers),
			Source:      SourceKeyword,
			Rule:        r.Name,
			SearchTerms: searchTerms(in.Question, r.SearchTerms),
			Paths:       paths,
		}), nil
	}

	sel := c.Default()
	sel.Paths, sel.SearchTerms = paths, searchTerms(in.Question, nil)
	if len(paths) > 0 {
		// A named file is always worth reading.
		sel.Providers = appendUnique(sel.Providers, evidence.FileContent)
	}
	return sel, nil
}

// searchTerms puts terms named in the question ahead of the rule or preset
// hints. Plain content words are used only when neither yields anything.
func searchTerms(question string, hints []string) []string {
	terms := appendUnique(extractTerms(question, maxQuestionTerms, false), hints...)
	if len(terms) == 0 {
		terms = ExtractSearchTerms(question, maxQuestionTerms)
	}
	return terms
}

// searchable drops code search from a selection with nothing to search
// for, unless it is the only provider left.
func searchable(sel Selection) Selection {
	if len(sel.SearchTerms) > 0 || len(sel.Providers) < 2 || !contains(sel.Providers, evidence.CodeSearch) {
		return sel
	}
	out := make([]string, 0, len(sel.Providers)-1)
	for _, p := range sel.Providers {
		if p != evidence.CodeSearch {
			out = append(out, p)
		}
	}
	sel.Providers = out
	return sel
}

func (c *Classifier) match(tokens []string) (Rule, bool) {
	if len(tokens) == 0 {
		return Rule{}, false
	}
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	for _, r := range c.rules {
		if len(r.Providers) == 0 {
			continue
		}
		for _, k := range r.Keywords {
			if _, ok := set[strings.ToLower(k)]; ok {
				return r, true
			}
		}
	}
	return Rule{}, false
}

func dedupe(in []string) []string { return appendUnique(nil, in...) }

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		if it == "" || contains(dst, it) {
			continue
		}
		dst = append(dst, it)
	}
	return dst
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
