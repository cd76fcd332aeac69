package github

import (
	"context"
	"strings"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

// Descriptors returns the built-in provider catalogue backed by c, in the
// order they are presented to users.
func (c *Client) Descriptors() []evidence.Descriptor {
	return []evidence.Descriptor{
		{
			Name:     evidence.Overview,
			Label:    "Repository overview",
			Cost:     evidence.CostLow,
			Keywords: []string{"overview", "about", "summary", "readme", "language", "stars", "license"},
			Fetcher:  evidence.FetcherFunc(c.fetchOverview),
		},
		{
			Name:     evidence.Structure,
			Label:    "Directory structure",
			Cost:     evidence.CostMedium,
			Keywords: []string{"structure", "layout", "tree", "directory", "folder", "architecture"},
			Fetcher:  evidence.FetcherFunc(c.fetchStructure),
		},
		{
			Name:     evidence.FileContent,
			Label:    "File contents",
			Cost:     evidence.CostMedium,
			Keywords: []string{"file", "content", "read", "manifest", "dependencies", "config"},
			Fetcher:  evidence.FetcherFunc(c.fetchFileContent),
		},
		{
			Name:     evidence.CommitHistory,
			Label:    "Commit history",
			Cost:     evidence.CostLow,
			Keywords: []string{"commit", "history", "contributor", "activity", "recent"},
			Fetcher:  evidence.FetcherFunc(c.fetchCommits),
		},
		{
			Name:     evidence.CodeSearch,
			Label:    "Code search",
			Cost:     evidence.CostHigh,
			Keywords: []string{"search", "find", "function", "usage", "defined"},
			Fetcher:  evidence.FetcherFunc(c.fetchCodeSearch),
		},
		{
			Name:     evidence.Issues,
			Label:    "Issues and pull requests",
			Cost:     evidence.CostLow,
			Keywords: []string{"issue", "bug", "pull", "feature", "roadmap"},
			Fetcher:  evidence.FetcherFunc(c.fetchIssues),
		},
	}
}

// defaultBranch resolves the branch used for tree listings.
func (c *Client) defaultBranch(ctx context.Context, provider string, ref repo.Ref) (string, error) {
	r, _, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return "", normalize(provider, err)
	}
	if b := strings.TrimSpace(r.GetDefaultBranch()); b != "" {
		return b, nil
	}
	return "HEAD", nil
}

func clampInt(v, def, max int) int {
	if v <= 0 {
		v = def
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}
