package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

const readmeCap = 4000

func (c *Client) fetchOverview(ctx context.Context, ref repo.Ref, _ evidence.Params) (evidence.Result, error) {
	const name = evidence.Overview
	r, _, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return evidence.Result{}, normalize(name, err)
	}

	out := newPayload(c.payloadCap)
	out.line("Repository: %s", orDash(r.GetFullName()))
	out.line("Description: %s", orDash(r.GetDescription()))
	out.line("Primary language: %s", orDash(r.GetLanguage()))
	out.line("Stars: %d  Forks: %d  Open issues: %d  Watchers: %d",
		r.GetStargazersCount(), r.GetForksCount(), r.GetOpenIssuesCount(), r.GetSubscribersCount())
	out.line("Default branch: %s", orDash(r.GetDefaultBranch()))
	if lic := r.GetLicense(); lic != nil {
		out.line("License: %s", orDash(lic.GetName()))
	}
	if len(r.Topics) > 0 {
		out.line("Topics: %s", strings.Join(r.Topics, ", "))
	}
	if hp := strings.TrimSpace(r.GetHomepage()); hp != "" {
		out.line("Homepage: %s", hp)
	}
	if !r.GetCreatedAt().IsZero() {
		out.line("Created: %s", r.GetCreatedAt().Format("2006-01-02"))
	}
	if !r.GetPushedAt().IsZero() {
		out.line("Last push: %s", r.GetPushedAt().Format("2006-01-02"))
	}
	if r.GetArchived() {
		out.line("Archived: yes")
	}

	langs, _, err := c.gh.Repositories.ListLanguages(ctx, ref.Owner, ref.Name)
	if err == nil && len(langs) > 0 {
		out.line("Languages: %s", languageBreakdown(langs))
	}

	readme, _, err := c.gh.Repositories.GetReadme(ctx, ref.Owner, ref.Name, nil)
	switch {
	case err == nil:
		text, derr := readme.GetContent()
		if derr == nil && strings.TrimSpace(text) != "" {
			out.line("")
			out.line("README (%s):", readme.GetPath())
			readmeTruncated := len(text) > readmeCap
			out.block(clip(text, readmeCap))
			if readmeTruncated {
				out.truncated = true
			}
		}
	case errors.Is(normalize(name, err), evidence.ErrNotFound):
		out.line("README: none")
	default:
		// README problems do not invalidate the metadata already collected.
		out.line("README: unavailable")
	}

	return evidence.Result{Provider: name, Payload: out.String(), Truncated: out.truncated, OK: true}, nil
}

// languageBreakdown renders "Go 81.2%, Shell 10.0%, ..." sorted by share.
func languageBreakdown(langs map[string]int) string {
	type kv struct {
		lang  string
		bytes int
	}
	total := 0
	list := make([]kv, 0, len(langs))
	for l, b := range langs {
		list = append(list, kv{l, b})
		total += b
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].bytes != list[j].bytes {
			return list[i].bytes > list[j].bytes
		}
		return list[i].lang < list[j].lang
	})
	if total == 0 {
		total = 1
	}
	parts := make([]string, 0, len(list))
	for _, e := range list {
		parts = append(parts, e.lang+" "+percent(e.bytes, total))
	}
	return strings.Join(parts, ", ")
}

func percent(n, total int) string {
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
