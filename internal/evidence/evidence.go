package evidence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"repolens/internal/repo"
)

// Cost is a relative expense hint used only for ordering and display.
type Cost int

const (
	CostLow Cost = iota
	CostMedium
	CostHigh
)

func (c Cost) String() string {
	switch c {
	case CostLow:
		return "low"
	case CostMedium:
		return "medium"
	case CostHigh:
		return "high"
	default:
		return fmt.Sprintf("cost(%d)", int(c))
	}
}

// Params bounds how much a provider fetches and carries request hints.
type Params struct {
	MaxFiles    int      `json:"max_files"`
	MaxDepth    int      `json:"max_depth"`
	MaxCommits  int      `json:"max_commits"`
	Question    string   `json:"question,omitempty"`
	Paths       []string `json:"paths,omitempty"`
	SearchTerms []string `json:"search_terms,omitempty"`
}

// Key is a stable textual form of p, suitable for cache keys.
func (p Params) Key() string {
	paths := append([]string(nil), p.Paths...)
	terms := append([]string(nil), p.SearchTerms...)
	sort.Strings(paths)
	sort.Strings(terms)
	return fmt.Sprintf("f=%d;d=%d;c=%d;p=%s;s=%s", p.MaxFiles, p.MaxDepth, p.MaxCommits,
		strings.Join(paths, ","), strings.Join(terms, ","))
}

// Fetcher retrieves one provider's evidence for a repository.
type Fetcher interface {
	Fetch(ctx context.Context, ref repo.Ref, p Params) (Result, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref repo.Ref, p Params) (Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref repo.Ref, p Params) (Result, error) {
	return f(ctx, ref, p)
}

// Descriptor describes a registered evidence provider.
type Descriptor struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Cost     Cost     `json:"-"`
	Keywords []string `json:"keywords,omitempty"`
	Fetcher  Fetcher  `json:"-"`
}

// Result is the textual evidence returned by one provider.
type Result struct {
	Provider  string `json:"provider"`
	Payload   string `json:"payload"`
	Truncated bool   `json:"truncated"`
	OK        bool   `json:"ok"`
}

// Bundle aggregates every provider outcome for one request.
type Bundle struct {
	Results   map[string]Result
	Attempted []string
	Succeeded []string
	Failures  map[string]error
}

// NewBundle prepares an empty bundle for the given providers in order.
func NewBundle(attempted []string) *Bundle {
	return &Bundle{
		Results:   make(map[string]Result, len(attempted)),
		Attempted: append([]string(nil), attempted...),
		Failures:  make(map[string]error),
	}
}

// Record stores a provider outcome. Names outside Attempted are ignored.
func (b *Bundle) Record(name string, res Result, err error) {
	if !b.attempted(name) {
		return
	}
	if err != nil {
		b.Failures[name] = err
		return
	}
	res.Provider = name
	res.OK = true
	b.Results[name] = res
}

// Seal recomputes Succeeded in attempted order. Call it once all outcomes
// are recorded.
func (b *Bundle) Seal() {
	b.Succeeded = b.Succeeded[:0]
	for _, name := range b.Attempted {
		if _, ok := b.Results[name]; ok {
			b.Succeeded = append(b.Succeeded, name)
		}
	}
}

// Missing lists attempted providers without a successful result.
func (b *Bundle) Missing() []string {
	var out []string
	for _, name := range b.Attempted {
		if _, ok := b.Results[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Summary renders "N of M sources".
func (b *Bundle) Summary() string {
	return fmt.Sprintf("%d of %d sources", len(b.Succeeded), len(b.Attempted))
}

func (b *Bundle) attempted(name string) bool {
	for _, a := range b.Attempted {
		if a == name {
			return true
		}
	}
	return false
}
