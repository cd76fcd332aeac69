package github

import (
	"context"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

func (c *Client) fetchIssues(ctx context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
	const name = evidence.Issues
	n := clampInt(p.MaxCommits, 20, 100)
	list, _, err := c.gh.Issues.ListByRepo(ctx, ref.Owner, ref.Name, &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: n},
	})
	if err != nil {
		return evidence.Result{}, normalize(name, err)
	}

	var issues, pulls []*gh.Issue
	open := 0
	for _, it := range list {
		if it.GetState() == "open" {
			open++
		}
		if it.IsPullRequest() {
			pulls = append(pulls, it)
		} else {
			issues = append(issues, it)
		}
	}

	out := newPayload(c.payloadCap)
	out.line("Recently updated: %d issues, %d pull requests (%d open)", len(issues), len(pulls), open)
	section := func(title string, items []*gh.Issue) {
		out.line("")
		out.line("%s:", title)
		if len(items) == 0 {
			out.line("- none")
			return
		}
		for _, it := range items {
			if !out.line("%s", issueLine(it)) {
				return
			}
		}
	}
	section("Issues", issues)
	section("Pull requests", pulls)
	return evidence.Result{Provider: name, Payload: out.String(), Truncated: out.truncated, OK: true}, nil
}

func issueLine(it *gh.Issue) string {
	var b strings.Builder
	b.WriteString("- #")
	b.WriteString(strconv.Itoa(it.GetNumber()))
	b.WriteString(" [")
	b.WriteString(it.GetState())
	b.WriteString("] ")
	b.WriteString(firstLine(it.GetTitle()))
	if len(it.Labels) > 0 {
		names := make([]string, 0, len(it.Labels))
		for _, l := range it.Labels {
			names = append(names, l.GetName())
		}
		b.WriteString(" (labels: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(")")
	}
	if u := it.GetUser().GetLogin(); u != "" {
		b.WriteString(" by ")
		b.WriteString(u)
	}
	if n := it.GetComments(); n > 0 {
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" comments")
	}
	return b.String()
}
