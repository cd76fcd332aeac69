package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	groqBaseURL        = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// ChatClient talks to any OpenAI-compatible Chat Completions endpoint.
// Groq is served through the same client with a different base URL.
type ChatClient struct {
	cli   *openai.Client
	name  string
	model string
	key   bool
}

// NewOpenAIClient creates an OpenAI backend.
func NewOpenAIClient(cfg Config) *ChatClient {
	return newChatClient("openai", cfg, "", DefaultOpenAIModel)
}

// NewGroqClient creates a Groq backend.
func NewGroqClient(cfg Config) *ChatClient {
	return newChatClient("groq", cfg, groqBaseURL, DefaultGroqModel)
}

func newChatClient(name string, cfg Config, baseURL, model string) *ChatClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if u := orDefault(cfg.BaseURL, baseURL); u != "" {
		oc.BaseURL = strings.TrimRight(u, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &ChatClient{
		cli:   openai.NewClientWithConfig(oc),
		name:  name,
		model: orDefault(cfg.Model, model),
		key:   cfg.APIKey != "",
	}
}

func (c *ChatClient) Name() string { return c.name }
func (c *ChatClient) Close() error { return nil }

func (c *ChatClient) Generate(ctx context.Context, req Request) (string, error) {
	if !c.key {
		return "", NewPermanentError(ErrAuth)
	}
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       orDefault(req.Model, c.model),
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: chatTemperature(req.Temperature),
	})
	if err != nil {
		return "", c.normalize(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *ChatClient) normalize(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return NewPermanentError(statusError(c.name, apiErr.HTTPStatusCode, msg))
		}
		return statusError(c.name, apiErr.HTTPStatusCode, msg)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(c.name, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return transportError(c.name, err)
}

// chatTemperature maps an explicit zero to the smallest non-zero value,
// since the request field drops zero on the wire.
func chatTemperature(t *float32) float32 {
	switch {
	case t == nil:
		return 0
	case *t == 0:
		return math.SmallestNonzeroFloat32
	default:
		return *t
	}
}
