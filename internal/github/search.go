package github

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

const maxSearchTerms = 3

func (c *Client) fetchCodeSearch(ctx context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
	const name = evidence.CodeSearch
	terms := searchTerms(p.SearchTerms)
	if len(terms) == 0 {
		return evidence.Result{}, evidence.NewProviderError(name, evidence.ErrNotFound, errors.New("no search terms"))
	}
	perTerm := clampInt(p.MaxFiles, 10, 20)

	out := newPayload(c.payloadCap)
	truncated := false
	hits := 0
	for _, term := range terms {
		q := fmt.Sprintf("%s repo:%s", quoteTerm(term), ref.String())
		res, _, err := c.gh.Search.Code(ctx, q, &gh.SearchOptions{
			TextMatch:   true,
			ListOptions: gh.ListOptions{PerPage: perTerm},
		})
		if err != nil {
			nerr := normalize(name, err)
			if errors.Is(nerr, evidence.ErrNotFound) {
				out.line("Search %q: no results", term)
				continue
			}
			return evidence.Result{}, nerr
		}
		total := res.GetTotal()
		if res.GetIncompleteResults() || total > len(res.CodeResults) {
			truncated = true
		}
		out.line("Search %q: %d result(s)", term, total)
		for _, cr := range res.CodeResults {
			hits++
			frag := ""
			if len(cr.TextMatches) > 0 {
				frag = firstLine(cr.TextMatches[0].GetFragment())
			}
			if frag != "" {
				out.line("- %s: %s", cr.GetPath(), clip(frag, 200))
			} else {
				out.line("- %s", cr.GetPath())
			}
		}
	}
	if len(p.SearchTerms) > maxSearchTerms {
		truncated = true
	}
	if hits == 0 {
		out.line("No matching code found.")
	}
	return evidence.Result{Provider: name, Payload: out.String(), Truncated: truncated || out.truncated, OK: true}, nil
}

func searchTerms(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
		if len(out) == maxSearchTerms {
			break
		}
	}
	return out
}

func quoteTerm(t string) string {
	if strings.ContainsAny(t, " \t") {
		return `"` + strings.ReplaceAll(t, `"`, "") + `"`
	}
	return t
}
