package github

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

// noiseDirs are never descended into when rendering the tree.
var noiseDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	".idea":        true,
	".vscode":      true,
}

func (c *Client) fetchStructure(ctx context.Context, ref repo.Ref, p evidence.Params) (evidence.Result, error) {
	const name = evidence.Structure
	maxDepth := clampInt(p.MaxDepth, 3, 10)
	maxEntries := clampInt(p.MaxFiles, 50, 1000)

	branch, err := c.defaultBranch(ctx, name, ref)
	if err != nil {
		return evidence.Result{}, err
	}
	tree, _, err := c.gh.Git.GetTree(ctx, ref.Owner, ref.Name, branch, true)
	if err != nil {
		return evidence.Result{}, normalize(name, err)
	}

	type node struct {
		path  string
		isDir bool
	}
	var (
		nodes       []node
		files, dirs int
		dropped     bool
		extCount    = map[string]int{}
	)
	for _, e := range tree.Entries {
		p := strings.Trim(e.GetPath(), "/")
		if p == "" || underNoise(p) {
			continue
		}
		isDir := e.GetType() == "tree"
		if isDir {
			dirs++
		} else {
			files++
			if ext := strings.ToLower(path.Ext(p)); ext != "" {
				extCount[ext]++
			}
		}
		if depthOf(p) > maxDepth {
			dropped = true
			continue
		}
		if len(nodes) >= maxEntries {
			dropped = true
			continue
		}
		nodes = append(nodes, node{path: p, isDir: isDir})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].path < nodes[j].path })

	out := newPayload(c.payloadCap)
	out.line("Branch: %s", branch)
	out.line("Totals: %d files, %d directories", files, dirs)
	if len(extCount) > 0 {
		out.line("Top extensions: %s", topExtensions(extCount, 8))
	}
	out.line("Tree (depth <= %d, at most %d entries):", maxDepth, maxEntries)
	for _, n := range nodes {
		label := path.Base(n.path)
		if n.isDir {
			label += "/"
		}
		if !out.line("%s%s", strings.Repeat("  ", depthOf(n.path)-1), label) {
			break
		}
	}
	truncated := out.truncated || dropped || tree.GetTruncated()
	if truncated && !out.truncated {
		out.line("(listing truncated)")
	}
	return evidence.Result{Provider: name, Payload: out.String(), Truncated: truncated, OK: true}, nil
}

func depthOf(p string) int { return strings.Count(p, "/") + 1 }

func underNoise(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if noiseDirs[seg] {
			return true
		}
	}
	return false
}

func topExtensions(counts map[string]int, n int) string {
	type kv struct {
		ext string
		n   int
	}
	list := make([]kv, 0, len(counts))
	for e, c := range counts {
		list = append(list, kv{e, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		return list[i].ext < list[j].ext
	})
	if len(list) > n {
		list = list[:n]
	}
	parts := make([]string, 0, len(list))
	for _, e := range list {
		parts = append(parts, e.ext+"="+strconv.Itoa(e.n))
	}
	return strings.Join(parts, ", ")
}
