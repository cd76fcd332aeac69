package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	claudeURL     = "https://api.anthropic.com/v1/messages"
	claudeVersion = "2023-06-01"
	// DefaultClaudeModel is used when neither the request nor the config names one.
	DefaultClaudeModel = "claude-sonnet-4-20250514"
)

// ClaudeClient calls the Anthropic Messages API.
// See: https://docs.anthropic.com/en/api/messages
type ClaudeClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

func NewClaudeClient(cfg Config) *ClaudeClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 90 * time.Second}
	}
	return &ClaudeClient{
		http:    hc,
		apiKey:  cfg.APIKey,
		model:   orDefault(cfg.Model, DefaultClaudeModel),
		baseURL: orDefault(cfg.BaseURL, claudeURL),
	}
}

func (c *ClaudeClient) Name() string { return "claude" }
func (c *ClaudeClient) Close() error { return nil }

type claudeReq struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature *float32        `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *ClaudeClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", NewPermanentError(ErrAuth)
	}
	body := claudeReq{
		Model:     orDefault(req.Model, c.model),
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []claudeMessage{{Role: "user", Content: req.Prompt}},
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = DefaultMaxTokens
	}
	if req.Temperature != nil {
		t := *req.Temperature
		body.Temperature = &t
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("x-api-key", c.apiKey)
	hreq.Header.Set("anthropic-version", claudeVersion)

	resp, err := c.http.Do(hreq)
	if err != nil {
		return "", transportError("claude", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		// Anthropic reports overload as 529.
		return "", statusError("claude", resp.StatusCode, string(raw))
	}
	var out claudeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", transportError("claude", err)
	}
	var sb strings.Builder
	for _, part := range out.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
