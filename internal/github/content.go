package github

import (
	"context"
	"errors"
	"sort"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

// keyFiles are read when the request names no paths, in priority order.
var keyFiles = []string{
	"README.md", "README.rst", "README",
	"go.mod", "package.json", "requirements.txt", "pyproject.toml", "setup.py",
	"Cargo.toml", "Gemfile", "pom.xml", "build.gradle", "composer.json",
	"Dockerfile", "docker-compose.yml", "Makefile",
	"CONTRIBUTING.md", "SECURITY.md",
}

const maxContentFiles = 8

func (c *Client) fetchFileContent(ctx context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
	const name = evidence.FileContent
	limit := clampInt(p.MaxFiles, maxContentFiles, maxContentFiles)

	paths := cleanPaths(p.Paths)
	explicit := len(paths) > 0
	if !explicit {
		var err error
		paths, err = c.rootKeyFiles(ctx, ref)
		if err != nil {
			return evidence.Result{}, err
		}
		if len(paths) == 0 {
			return evidence.Result{}, evidence.NewProviderError(name, evidence.ErrNotFound,
				errors.New("no recognised key files at repository root"))
		}
	}
	truncated := false
	if len(paths) > limit {
		paths = paths[:limit]
		truncated = true
	}

	out := newPayload(c.payloadCap)
	found := 0
	var lastErr error
	for _, fp := range paths {
		file, dir, _, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Name, fp, nil)
		if err != nil {
			nerr := normalize(name, err)
			if !errors.Is(nerr, evidence.ErrNotFound) {
				return evidence.Result{}, nerr
			}
			lastErr = nerr
			out.line("=== %s ===", fp)
			out.line("(not found)")
			continue
		}
		found++
		if file == nil {
			out.line("=== %s/ (directory) ===", fp)
			for _, d := range sortedContents(dir) {
				suffix := ""
				if d.GetType() == "dir" {
					suffix = "/"
				}
				if !out.line("- %s%s", d.GetName(), suffix) {
					break
				}
			}
			continue
		}
		text, err := file.GetContent()
		if err != nil {
			out.line("=== %s ===", fp)
			out.line("(content unavailable: %v)", err)
			continue
		}
		out.line("=== %s (%d bytes) ===", fp, file.GetSize())
		if len(text) > c.fileCap {
			text = clip(text, c.fileCap)
			truncated = true
			out.block(text)
			out.line("... [file truncated]")
			continue
		}
		out.block(text)
	}
	if found == 0 && lastErr != nil {
		return evidence.Result{}, lastErr
	}
	return evidence.Result{Provider: name, Payload: out.String(), Truncated: truncated || out.truncated, OK: true}, nil
}

// rootKeyFiles lists the repository root and picks known key files.
func (c *Client) rootKeyFiles(ctx context.Context, ref repo.Ref) ([]string, error) {
	_, dir, _, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Name, "", nil)
	if err != nil {
		return nil, normalize(evidence.FileContent, err)
	}
	present := make(map[string]string, len(dir))
	for _, d := range dir {
		if d.GetType() == "file" {
			present[strings.ToLower(d.GetName())] = d.GetPath()
		}
	}
	var out []string
	for _, k := range keyFiles {
		if p, ok := present[strings.ToLower(k)]; ok {
			out = append(out, p)
			delete(present, strings.ToLower(k))
		}
	}
	return out, nil
}

func cleanPaths(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range in {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" || strings.Contains(p, "..") || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func sortedContents(in []*gh.RepositoryContent) []*gh.RepositoryContent {
	out := append([]*gh.RepositoryContent(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}
