// Package mcpserver exposes the evidence providers and the answer pipeline
// as MCP tools.
package mcpserver

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"repolens/internal/evidence"
	"repolens/internal/pipeline"
	"repolens/internal/synth"
)

// Service is the part of *pipeline.Pipeline the tools use.
type Service interface {
	Answer(ctx context.Context, req pipeline.Request) (synth.Answer, error)
	Plan(req pipeline.Request) (pipeline.Plan, error)
	Providers() []evidence.Descriptor
}

// Server wraps the MCP SDK server. Run it with Run or connect
// MCPServer to another transport.
type Server struct {
	MCPServer *sdkmcp.Server

	svc    Service
	logger *zap.Logger
}

func New(svc Service, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "repolens", Version: version}, nil),
		svc:       svc,
		logger:    logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	for _, d := range s.svc.Providers() {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        "get_" + d.Name,
			Description: fmt.Sprintf("Fetch %s evidence for a GitHub repository.", d.Label),
		}, s.providerHandler(d))
	}

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "ask_repository",
		Description: "Answer a question or run an analysis about a GitHub repository using only the evidence it needs.",
	}, s.handleAsk)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "explain_selection",
		Description: "Show which evidence sources a question or analysis type would use, without fetching anything.",
	}, s.handleExplain)
}

// --- Tool input/output types ---

type providerInput struct {
	Repo        string   `json:"repo" jsonschema:"owner/name or GitHub URL"`
	MaxFiles    int      `json:"max_files,omitempty" jsonschema:"maximum files to list or read"`
	MaxDepth    int      `json:"max_depth,omitempty" jsonschema:"maximum directory depth"`
	MaxCommits  int      `json:"max_commits,omitempty" jsonschema:"maximum commits to read"`
	Paths       []string `json:"paths,omitempty" jsonschema:"files to read"`
	SearchTerms []string `json:"search_terms,omitempty" jsonschema:"code search terms"`
}

type askInput struct {
	Repo         string `json:"repo" jsonschema:"owner/name or GitHub URL"`
	Question     string `json:"question,omitempty" jsonschema:"free-form question"`
	AnalysisType string `json:"analysis_type,omitempty" jsonschema:"comprehensive, quick, security, code_quality, dependency, architecture, activity or documentation"`
	Mode         string `json:"mode,omitempty" jsonschema:"fast, standard or smart"`
	Backend      string `json:"backend,omitempty" jsonschema:"language model backend"`
	Model        string `json:"model,omitempty" jsonschema:"model override"`
}

type explainInput struct {
	Question     string `json:"question,omitempty" jsonschema:"free-form question"`
	AnalysisType string `json:"analysis_type,omitempty" jsonschema:"analysis type tag"`
}

type explainOutput struct {
	Source    string   `json:"source"`
	Rule      string   `json:"rule,omitempty"`
	Providers []string `json:"providers"`
}

// --- Tool handlers ---

func (s *Server) providerHandler(d evidence.Descriptor) func(context.Context, *sdkmcp.CallToolRequest, providerInput) (*sdkmcp.CallToolResult, evidence.Result, error) {
	return func(ctx context.Context, _ *sdkmcp.CallToolRequest, in providerInput) (*sdkmcp.CallToolResult, evidence.Result, error) {
		ref, err := pipeline.ParseRepo(in.Repo)
		if err != nil {
			return nil, evidence.Result{}, err
		}
		mc := pipeline.Modes[pipeline.ModeStandard]
		p := evidence.Params{
			MaxFiles:    positive(in.MaxFiles, mc.MaxFiles),
			MaxDepth:    positive(in.MaxDepth, mc.MaxDepth),
			MaxCommits:  positive(in.MaxCommits, mc.MaxCommits),
			Paths:       in.Paths,
			SearchTerms: in.SearchTerms,
		}
		res, err := d.Fetcher.Fetch(ctx, ref, p)
		if err != nil {
			s.logger.Warn("tool fetch failed", zap.String("provider", d.Name), zap.String("kind", evidence.KindOf(err)), zap.Error(err))
			return nil, evidence.Result{}, fmt.Errorf("%s (%s): %w", d.Name, evidence.KindOf(err), err)
		}
		res.Provider, res.OK = d.Name, true
		return nil, res, nil
	}
}

func (s *Server) handleAsk(ctx context.Context, _ *sdkmcp.CallToolRequest, in askInput) (*sdkmcp.CallToolResult, synth.Answer, error) {
	ref, err := pipeline.ParseRepo(in.Repo)
	if err != nil {
		return nil, synth.Answer{}, err
	}
	mode, err := pipeline.ParseMode(in.Mode)
	if err != nil {
		return nil, synth.Answer{}, err
	}
	ans, err := s.svc.Answer(ctx, pipeline.Request{
		Repo:         ref,
		Question:     in.Question,
		AnalysisType: in.AnalysisType,
		Mode:         mode,
		Backend:      in.Backend,
		Model:        in.Model,
	})
	if err != nil {
		return nil, synth.Answer{}, fmt.Errorf("%s: %w", pipeline.Kind(err), err)
	}
	return nil, ans, nil
}

func (s *Server) handleExplain(_ context.Context, _ *sdkmcp.CallToolRequest, in explainInput) (*sdkmcp.CallToolResult, explainOutput, error) {
	pl, err := s.svc.Plan(pipeline.Request{Question: in.Question, AnalysisType: in.AnalysisType})
	if err != nil {
		return nil, explainOutput{}, err
	}
	return nil, explainOutput{
		Source:    string(pl.Selection.Source),
		Rule:      pl.Selection.Rule,
		Providers: pl.Names(),
	}, nil
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
