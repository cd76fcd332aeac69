// Package archive persists answered reports so they can be listed and
// fetched later by ID.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("report not found")

// Report is one archived answer.
type Report struct {
	ID            string    `json:"id"`
	Repo          string    `json:"repo"`
	Question      string    `json:"question,omitempty"`
	AnalysisType  string    `json:"analysis_type,omitempty"`
	Text          string    `json:"text"`
	ProvidersUsed []string  `json:"providers_used"`
	Missing       []string  `json:"missing,omitempty"`
	Backend       string    `json:"backend"`
	Model         string    `json:"model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListOptions filters List. Zero Limit means DefaultListLimit.
type ListOptions struct {
	Repo  string
	Limit int
}

const DefaultListLimit = 50

// Store defines operations for persisting reports.
type Store interface {
	Put(ctx context.Context, r Report) error
	Get(ctx context.Context, id string) (Report, error)
	List(ctx context.Context, opts ListOptions) ([]Report, error)
}

// NewID returns a fresh report ID.
func NewID() string { return uuid.NewString() }

func validate(r Report) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("id %q: %w", r.ID, err)
	}
	if strings.TrimSpace(r.Repo) == "" {
		return fmt.Errorf("repo is required")
	}
	return nil
}

func normalizeID(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrNotFound
	}
	return u.String(), nil
}

// newestFirst sorts by CreatedAt descending, then ID for stability, and
// applies the filter and limit.
func newestFirst(in []Report, opts ListOptions) []Report {
	out := make([]Report, 0, len(in))
	for _, r := range in {
		if opts.Repo != "" && !strings.EqualFold(r.Repo, opts.Repo) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
