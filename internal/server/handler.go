// Package server exposes the pipeline over HTTP and a websocket stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"repolens/internal/archive"
	"repolens/internal/evidence"
	"repolens/internal/pipeline"
	"repolens/internal/repo"
	"repolens/internal/synth"
)

// Service is the part of *pipeline.Pipeline the handlers use.
type Service interface {
	Answer(ctx context.Context, req pipeline.Request) (synth.Answer, error)
	Plan(req pipeline.Request) (pipeline.Plan, error)
	Providers() []evidence.Descriptor
	Backends() []string
}

const maxBodyBytes = 64 << 10

// AnswerRequest is the JSON body of /v1/answer, /v1/explain and the first
// stream message.
type AnswerRequest struct {
	Repo         string `json:"repo"`
	Question     string `json:"question,omitempty"`
	AnalysisType string `json:"analysis_type,omitempty"`
	MaxFiles     int    `json:"max_files,omitempty"`
	MaxDepth     int    `json:"max_depth,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Backend      string `json:"backend,omitempty"`
	Model        string `json:"model,omitempty"`
}

// ToPipeline converts the body. The repository may be empty when
// requireRepo is false.
func (a AnswerRequest) ToPipeline(requireRepo bool) (pipeline.Request, error) {
	var ref repo.Ref
	if strings.TrimSpace(a.Repo) != "" || requireRepo {
		var err error
		if ref, err = pipeline.ParseRepo(a.Repo); err != nil {
			return pipeline.Request{}, err
		}
	}
	mode, err := pipeline.ParseMode(a.Mode)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		Repo:         ref,
		Question:     a.Question,
		AnalysisType: a.AnalysisType,
		MaxFiles:     a.MaxFiles,
		MaxDepth:     a.MaxDepth,
		Mode:         mode,
		Backend:      a.Backend,
		Model:        a.Model,
	}, nil
}

// ProviderInfo is the JSON form of a descriptor.
type ProviderInfo struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Cost     string   `json:"cost"`
	Keywords []string `json:"keywords,omitempty"`
}

func providerInfos(ds []evidence.Descriptor) []ProviderInfo {
	out := make([]ProviderInfo, len(ds))
	for i, d := range ds {
		out[i] = ProviderInfo{Name: d.Name, Label: d.Label, Cost: d.Cost.String(), Keywords: d.Keywords}
	}
	return out
}

// ExplainResponse describes a provider selection.
type ExplainResponse struct {
	Source       string         `json:"source"`
	Rule         string         `json:"rule,omitempty"`
	AnalysisType string         `json:"analysis_type,omitempty"`
	SearchTerms  []string       `json:"search_terms,omitempty"`
	Paths        []string       `json:"paths,omitempty"`
	Providers    []ProviderInfo `json:"providers"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	AllowedOrigins []string
}

type handler struct {
	svc      Service
	reports  archive.Store
	upgrader *websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler routes the API. reports may be nil when archiving is off.
func NewHandler(svc Service, reports archive.Store, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		svc:      svc,
		reports:  reports,
		upgrader: newStreamUpgrader(newOriginList(opts.AllowedOrigins)),
		logger:   logger.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/answer", h.handleAnswer)
	mux.HandleFunc("POST /v1/explain", h.handleExplain)
	mux.HandleFunc("GET /v1/providers", h.handleProviders)
	mux.HandleFunc("GET /v1/reports", h.handleListReports)
	mux.HandleFunc("GET /v1/reports/{id}", h.handleGetReport)
	mux.HandleFunc("GET /v1/answer/stream", h.handleStream)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	return CORS(opts.AllowedOrigins, mux)
}

func (h *handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var in AnswerRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	req, err := in.ToPipeline(true)
	if err != nil {
		writeError(w, err)
		return
	}
	ans, err := h.svc.Answer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	var in AnswerRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	req, err := in.ToPipeline(false)
	if err != nil {
		writeError(w, err)
		return
	}
	pl, err := h.svc.Plan(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplainResponse{
		Source:       string(pl.Selection.Source),
		Rule:         pl.Selection.Rule,
		AnalysisType: pl.Selection.AnalysisType,
		SearchTerms:  pl.Selection.SearchTerms,
		Paths:        pl.Selection.Paths,
		Providers:    providerInfos(pl.Descriptors),
	})
}

func (h *handler) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": providerInfos(h.svc.Providers()),
		"backends":  h.svc.Backends(),
	})
}

func (h *handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "report archive is disabled"})
		return
	}
	opts := archive.ListOptions{Repo: strings.TrimSpace(r.URL.Query().Get("repo"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: pipeline.CodeInvalidRequest, Message: "limit must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}
	list, err := h.reports.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list reports", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: pipeline.CodeInternal, Message: "listing reports failed"})
		return
	}
	if list == nil {
		list = []archive.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": list})
}

func (h *handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "report archive is disabled"})
		return
	}
	rep, err := h.reports.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "report not found"})
		return
	}
	if err != nil {
		h.logger.Error("get report", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: pipeline.CodeInternal, Message: "loading report failed"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": len(h.svc.Providers()),
		"backends":  h.svc.Backends(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
	}
	return nil
}

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	switch pipeline.Kind(err) {
	case pipeline.CodeInvalidRequest:
		return http.StatusBadRequest
	case pipeline.CodeNoEvidence:
		return http.StatusBadGateway
	case pipeline.CodeSynthesisFailed:
		if synth.Timeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case pipeline.CodeCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := pipeline.Kind(err)
	msg := err.Error()
	if code == pipeline.CodeInternal {
		msg = "internal error"
	}
	writeJSON(w, StatusFor(err), ErrorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
