package prompt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/evidence"
	"repolens/internal/repo"
)

var acme = repo.MustParse("acme/widgets")

func bundle(attempted []string, payloads map[string]string, failures map[string]error) *evidence.Bundle {
	b := evidence.NewBundle(attempted)
	for _, name := range attempted {
		if err, ok := failures[name]; ok {
			b.Record(name, evidence.Result{}, err)
			continue
		}
		b.Record(name, evidence.Result{Payload: payloads[name]}, nil)
	}
	b.Seal()
	return b
}

func TestDependencyTemplateOrdersManifestsFirst(t *testing.T) {
	// Selection order differs from template order on purpose.
	b := bundle([]string{evidence.CodeSearch, evidence.FileContent},
		map[string]string{evidence.FileContent: "=== go.mod ===\nrequire x v1", evidence.CodeSearch: "main.go: import x"}, nil)

	p, err := New().Assemble(b, Request{Repo: acme, AnalysisType: "dependency analysis"})
	require.NoError(t, err)
	assert.Equal(t, "dependency", p.Template)
	assert.Equal(t, []string{evidence.FileContent, evidence.CodeSearch}, p.ProvidersUsed)
	assert.Contains(t, p.Text, "[EVIDENCE: Dependency manifests]")
	assert.Contains(t, p.Text, "[EVIDENCE: Import and require sites]")
	assert.Less(t, strings.Index(p.Text, "require x v1"), strings.Index(p.Text, "main.go: import x"))
	assert.Contains(t, p.Text, "Analyze these project dependencies.")
	assert.Contains(t, p.Text, "2 of 2 sources available")
}

func TestEmptySectionsAreOmitted(t *testing.T) {
	b := bundle([]string{evidence.FileContent, evidence.CodeSearch},
		map[string]string{evidence.FileContent: "manifest"},
		map[string]error{evidence.CodeSearch: evidence.NewProviderError(evidence.CodeSearch, evidence.ErrRateLimited, nil)})

	p, err := New().Assemble(b, Request{Repo: acme, AnalysisType: "dependency"})
	require.NoError(t, err)
	assert.Equal(t, []string{evidence.FileContent}, p.ProvidersUsed)
	assert.NotContains(t, p.Text, "Import and require sites")
	assert.NotContains(t, p.Text, "Project context")
	assert.Contains(t, p.Text, "[UNAVAILABLE SOURCES]\n- code_search (rate_limited)")
	assert.Contains(t, p.Text, "1 of 2 sources available")
}

func TestAssembleIsDeterministic(t *testing.T) {
	b := bundle(
		[]string{evidence.Overview, evidence.FileContent, evidence.Structure, evidence.CommitHistory},
		map[string]string{
			evidence.Overview:      "widgets: a thing",
			evidence.FileContent:   "README",
			evidence.Structure:     "cmd/\ninternal/",
			evidence.CommitHistory: "- abc1234 fix",
		}, nil)
	a := New()
	req := Request{Repo: acme, Question: "How is this organised?"}
	first, err := a.Assemble(b, req)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := a.Assemble(b, req)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("assembly changed between calls (-first +again):\n%s", diff)
		}
	}
	assert.Equal(t, []string{evidence.Overview, evidence.FileContent, evidence.Structure, evidence.CommitHistory}, first.ProvidersUsed)
	assert.Contains(t, first.Text, "[QUESTION]\nHow is this organised?")
}

func TestUnboundProvidersGoToAdditionalEvidence(t *testing.T) {
	b := bundle([]string{evidence.Overview, evidence.Issues},
		map[string]string{evidence.Overview: "o", evidence.Issues: "- #1 [open] crash"}, nil)
	p, err := New().Assemble(b, Request{Repo: acme, AnalysisType: "quick"})
	require.NoError(t, err)
	assert.Equal(t, []string{evidence.Overview, evidence.Issues}, p.ProvidersUsed)
	assert.Contains(t, p.Text, "[EVIDENCE: Additional evidence]")
	assert.Contains(t, p.Text, "#1 [open] crash")
}

func TestUnknownTypeUsesQuestionTemplate(t *testing.T) {
	b := bundle([]string{evidence.Overview}, map[string]string{evidence.Overview: "o"}, nil)
	p, err := New().Assemble(b, Request{Repo: acme, AnalysisType: "banana"})
	require.NoError(t, err)
	assert.Equal(t, QuestionTemplate, p.Template)
}

func TestLabelsAndTruncationMarker(t *testing.T) {
	b := evidence.NewBundle([]string{evidence.Structure})
	b.Record(evidence.Structure, evidence.Result{Payload: "tree", Truncated: true}, nil)
	b.Seal()
	a := New(WithLabels([]evidence.Descriptor{{Name: evidence.Structure, Label: "Directory structure"}}))
	p, err := a.Assemble(b, Request{Repo: acme})
	require.NoError(t, err)
	assert.Contains(t, p.Text, "### Directory structure (structure)\ntree\n(truncated)")
}

func TestEvidenceBudget(t *testing.T) {
	b := bundle([]string{evidence.Overview, evidence.FileContent},
		map[string]string{evidence.Overview: strings.Repeat("a", 30), evidence.FileContent: strings.Repeat("b", 30)}, nil)
	p, err := New(WithMaxEvidenceBytes(40)).Assemble(b, Request{Repo: acme})
	require.NoError(t, err)
	assert.Equal(t, []string{evidence.Overview, evidence.FileContent}, p.ProvidersUsed)
	assert.Contains(t, p.Text, strings.Repeat("a", 20)+"\n(truncated)")
	assert.Contains(t, p.Text, strings.Repeat("b", 20)+"\n(truncated)")
	assert.NotContains(t, p.Text, strings.Repeat("b", 21))
}

func TestEvidenceBudgetIsShared(t *testing.T) {
	all := []string{evidence.Overview, evidence.Structure, evidence.FileContent,
		evidence.CommitHistory, evidence.Issues, evidence.CodeSearch}
	payloads := map[string]string{}
	for _, name := range all {
		payloads[name] = strings.Repeat("x", 24000)
	}
	p, err := New().Assemble(bundle(all, payloads, nil), Request{Repo: acme, AnalysisType: "comprehensive"})
	require.NoError(t, err)
	assert.Equal(t, all, p.ProvidersUsed)
	assert.Empty(t, p.Omitted)
	for _, name := range all {
		assert.Contains(t, p.Text, "("+name+")\n"+strings.Repeat("x", DefaultMaxEvidenceBytes/len(all))+"\n(truncated)")
	}
	assert.Contains(t, p.Text, "6 of 6 sources available")
	assert.NotContains(t, p.Text, "[UNAVAILABLE SOURCES]")
}

func TestSmallPayloadsLeaveRoomForLargeOnes(t *testing.T) {
	b := bundle([]string{evidence.Overview, evidence.FileContent},
		map[string]string{evidence.Overview: "short", evidence.FileContent: strings.Repeat("f", 100)}, nil)
	p, err := New(WithMaxEvidenceBytes(50)).Assemble(b, Request{Repo: acme})
	require.NoError(t, err)
	assert.Contains(t, p.Text, "short\n")
	assert.Contains(t, p.Text, strings.Repeat("f", 45)+"\n(truncated)")
	assert.NotContains(t, p.Text, strings.Repeat("f", 46))
}

func TestExhaustedBudgetLabelsOmittedProviders(t *testing.T) {
	all := []string{evidence.Overview, evidence.Structure, evidence.FileContent}
	b := bundle(all, map[string]string{
		evidence.Overview:    "a",
		evidence.Structure:   "cdef",
		evidence.FileContent: "ghij",
	}, nil)
	p, err := New(WithMaxEvidenceBytes(2)).Assemble(b, Request{Repo: acme})
	require.NoError(t, err)
	assert.Equal(t, []string{evidence.Overview, evidence.Structure}, p.ProvidersUsed)
	assert.Equal(t, []string{evidence.FileContent}, p.Omitted)
	assert.NotContains(t, p.Text, "ghij")
	assert.Contains(t, p.Text, "2 of 3 sources available")
	assert.Contains(t, p.Text, "[UNAVAILABLE SOURCES]\n- file_content (omitted: budget)")
}

func TestNoSuccessesIsAnError(t *testing.T) {
	b := bundle([]string{evidence.Overview}, nil,
		map[string]error{evidence.Overview: evidence.NewProviderError(evidence.Overview, evidence.ErrTransient, nil)})
	_, err := New().Assemble(b, Request{Repo: acme})
	assert.ErrorIs(t, err, ErrNoEvidence)
	_, err = New().Assemble(nil, Request{Repo: acme})
	assert.ErrorIs(t, err, ErrNoEvidence)
}

func TestCustomTemplate(t *testing.T) {
	b := bundle([]string{evidence.Issues}, map[string]string{evidence.Issues: "i"}, nil)
	a := New(WithTemplates(Template{
		Name:         "triage",
		Instructions: []string{"Triage the open issues."},
		Sections:     []Section{{Header: "Backlog", Providers: []string{evidence.Issues}}},
	}))
	p, err := a.Assemble(b, Request{Repo: acme, AnalysisType: "triage"})
	require.NoError(t, err)
	assert.Contains(t, p.Text, "[EVIDENCE: Backlog]")
	assert.Contains(t, p.Text, "Perform a triage analysis")
}
