package pipeline

import (
	"fmt"
	"strings"
	"time"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

// Mode trades depth for latency.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeStandard Mode = "standard"
	ModeSmart    Mode = "smart"
)

// ModeConfig holds the evidence bounds and deadline for a mode.
type ModeConfig struct {
	MaxDepth   int
	MaxFiles   int
	MaxCommits int
	Deadline   time.Duration
}

var Modes = map[Mode]ModeConfig{
	ModeFast:     {MaxDepth: 2, MaxFiles: 20, MaxCommits: 10, Deadline: 20 * time.Second},
	ModeStandard: {MaxDepth: 3, MaxFiles: 50, MaxCommits: 20, Deadline: 45 * time.Second},
	ModeSmart:    {MaxDepth: 4, MaxFiles: 100, MaxCommits: 25, Deadline: 60 * time.Second},
}

// ParseMode accepts a mode name; empty means standard.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeStandard, nil
	}
	if _, ok := Modes[m]; !ok {
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
	return m, nil
}

// Request is one analysis request. MaxFiles and MaxDepth override the
// mode's bounds when positive.
type Request struct {
	Repo         repo.Ref
	Question     string
	AnalysisType string
	MaxFiles     int
	MaxDepth     int
	Mode         Mode
	Backend      string
	Model        string
}

const maxQuestionBytes = 4000

func (r Request) validate() error {
	if r.Repo.IsZero() {
		return fmt.Errorf("%w: repository is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Question) == "" && strings.TrimSpace(r.AnalysisType) == "" {
		return fmt.Errorf("%w: a question or an analysis type is required", ErrInvalidRequest)
	}
	if len(r.Question) > maxQuestionBytes {
		return fmt.Errorf("%w: question longer than %d bytes", ErrInvalidRequest, maxQuestionBytes)
	}
	if r.MaxFiles < 0 || r.MaxDepth < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidRequest)
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	return nil
}

func (r Request) mode() ModeConfig {
	m, err := ParseMode(string(r.Mode))
	if err != nil {
		m = ModeStandard
	}
	return Modes[m]
}

func (r Request) params(mc ModeConfig, paths, terms []string) evidence.Params {
	p := evidence.Params{
		MaxFiles:    mc.MaxFiles,
		MaxDepth:    mc.MaxDepth,
		MaxCommits:  mc.MaxCommits,
		Question:    strings.TrimSpace(r.Question),
		Paths:       paths,
		SearchTerms: terms,
	}
	if r.MaxFiles > 0 {
		p.MaxFiles = r.MaxFiles
	}
	if r.MaxDepth > 0 {
		p.MaxDepth = r.MaxDepth
	}
	return p
}
