package github

import (
	"context"
	"sort"

	gh "github.com/google/go-github/v68/github"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

func (c *Client) fetchCommits(ctx context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
	const name = evidence.CommitHistory
	n := clampInt(p.MaxCommits, 20, 100)
	commits, _, err := c.gh.Repositories.ListCommits(ctx, ref.Owner, ref.Name, &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: n},
	})
	if err != nil {
		return evidence.Result{}, normalize(name, err)
	}
	if len(commits) == 0 {
		return evidence.Result{}, evidence.NewProviderError(name, evidence.ErrNotFound, nil)
	}
	if len(commits) > n {
		commits = commits[:n]
	}

	authors := map[string]int{}
	out := newPayload(c.payloadCap)
	out.line("Most recent %d commits:", len(commits))
	for _, rc := range commits {
		author := commitAuthor(rc)
		authors[author]++
		date := rc.GetCommit().GetAuthor().GetDate()
		day := "unknown date"
		if !date.IsZero() {
			day = date.Format("2006-01-02")
		}
		sha := rc.GetSHA()
		if len(sha) > 7 {
			sha = sha[:7]
		}
		if !out.line("- %s %s %s: %s", sha, day, author, firstLine(rc.GetCommit().GetMessage())) {
			break
		}
	}

	type kv struct {
		who string
		n   int
	}
	ranked := make([]kv, 0, len(authors))
	for who, n := range authors {
		ranked = append(ranked, kv{who, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].who < ranked[j].who
	})
	out.line("")
	out.line("Authors in this window:")
	for _, a := range ranked {
		if !out.line("- %s (%d)", a.who, a.n) {
			break
		}
	}
	return evidence.Result{Provider: name, Payload: out.String(), Truncated: out.truncated, OK: true}, nil
}

func commitAuthor(rc *gh.RepositoryCommit) string {
	if login := rc.GetAuthor().GetLogin(); login != "" {
		return login
	}
	if n := rc.GetCommit().GetAuthor().GetName(); n != "" {
		return n
	}
	return "unknown"
}
