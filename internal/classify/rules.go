package classify

import (
	"strings"

	"repolens/internal/evidence"
)

// Rule maps a keyword set to the providers that can answer it.
// SearchTerms seed code search when the question names none.
type Rule struct {
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	Providers   []string `yaml:"providers"`
	SearchTerms []string `yaml:"search_terms,omitempty"`
}

// Preset is the fixed provider set and search hints for an analysis type.
type Preset struct {
	Providers   []string `yaml:"providers"`
	SearchTerms []string `yaml:"search_terms,omitempty"`
}

// DefaultProviders answers general questions; it is never the full catalogue.
var DefaultProviders = []string{
	evidence.Overview,
	evidence.FileContent,
	evidence.Structure,
	evidence.CommitHistory,
}

// DefaultRules is evaluated in order; the first intersecting rule wins.
var DefaultRules = []Rule{
	{
		Name: "dependencies",
		Keywords: []string{"dependency", "dependencies", "package", "packages", "library", "libraries",
			"requirements", "import", "imports", "manifest", "version", "versions", "deps"},
		Providers:   []string{evidence.FileContent, evidence.CodeSearch},
		SearchTerms: []string{"import", "require"},
	},
	{
		Name: "security",
		Keywords: []string{"security", "vulnerability", "vulnerabilities", "secret", "secrets", "password",
			"passwords", "token", "tokens", "credential", "credentials", "cve", "injection", "unsafe"},
		Providers:   []string{evidence.CodeSearch, evidence.FileContent},
		SearchTerms: []string{"password", "secret", "api_key", "token"},
	},
	{
		Name: "activity",
		Keywords: []string{"commit", "commits", "history", "changes", "changed", "recent", "recently",
			"contributor", "contributors", "activity", "author", "authors", "maintained", "maintainer"},
		Providers: []string{evidence.CommitHistory, evidence.Overview},
	},
	{
		Name: "issues",
		Keywords: []string{"issue", "issues", "bug", "bugs", "feature", "features", "pr", "prs", "pull",
			"requests", "roadmap", "backlog"},
		Providers: []string{evidence.Issues, evidence.Overview},
	},
	{
		Name: "structure",
		Keywords: []string{"structure", "structured", "organization", "organized", "tree", "directory",
			"directories", "folder", "folders", "layout", "architecture", "modules"},
		Providers: []string{evidence.Structure, evidence.Overview},
	},
	{
		Name: "search",
		Keywords: []string{"search", "find", "function", "functions", "class", "classes", "method",
			"methods", "where", "defined", "usage", "used", "implemented", "implementation"},
		Providers: []string{evidence.CodeSearch, evidence.Structure},
	},
	{
		Name: "files",
		Keywords: []string{"file", "files", "content", "contents", "read", "show", "readme", "docs",
			"documentation", "config", "configuration"},
		Providers: []string{evidence.FileContent, evidence.Structure},
	},
}

// DefaultPresets maps normalised analysis types to fixed provider sets.
var DefaultPresets = map[string]Preset{
	"comprehensive": {
		Providers: []string{evidence.Overview, evidence.Structure, evidence.FileContent,
			evidence.CommitHistory, evidence.Issues, evidence.CodeSearch},
		SearchTerms: []string{"TODO", "test"},
	},
	"quick": {
		Providers: []string{evidence.Overview, evidence.Structure},
	},
	"security": {
		Providers:   []string{evidence.CodeSearch, evidence.FileContent, evidence.Overview},
		SearchTerms: []string{"password", "secret", "api_key", "token", "eval("},
	},
	"code_quality": {
		Providers:   []string{evidence.Structure, evidence.FileContent, evidence.CodeSearch},
		SearchTerms: []string{"TODO", "FIXME", "test"},
	},
	"dependency": {
		Providers:   []string{evidence.FileContent, evidence.CodeSearch},
		SearchTerms: []string{"import", "require"},
	},
	"architecture": {
		Providers: []string{evidence.Structure, evidence.Overview, evidence.FileContent},
	},
	"activity": {
		Providers: []string{evidence.CommitHistory, evidence.Issues, evidence.Overview},
	},
	"documentation": {
		Providers: []string{evidence.FileContent, evidence.Structure, evidence.Overview},
	},
}

// aliases fold common spellings onto preset names.
var aliases = map[string]string{
	"dependencies": "dependency",
	"deps":         "dependency",
	"quality":      "code_quality",
	"full":         "comprehensive",
	"overview":     "quick",
	"docs":         "documentation",
	"structure":    "architecture",
}

// NormalizeType folds an analysis-type tag to its canonical form:
// "Dependency Analysis" -> "dependency", "code-quality" -> "code_quality".
func NormalizeType(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.NewReplacer(" ", "_", "-", "_").Replace(t)
	for strings.Contains(t, "__") {
		t = strings.ReplaceAll(t, "__", "_")
	}
	t = strings.TrimSuffix(t, "_analysis")
	if t == "analysis" {
		t = ""
	}
	t = strings.Trim(t, "_")
	if a, ok := aliases[t]; ok {
		return a
	}
	return t
}

// isQuestionTag reports tags that mean "no analysis type, answer the question".
func isQuestionTag(t string) bool {
	switch t {
	case "", "question", "qa", "q&a", "general", "ask":
		return true
	}
	return false
}
