package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/JexSrs/go-ollama"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1"
)

// OllamaClient calls a local Ollama server through its Generate endpoint.
type OllamaClient struct {
	client *ollama.Ollama
	model  string
}

func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	u, err := url.Parse(orDefault(cfg.BaseURL, DefaultOllamaHost))
	if err != nil {
		return nil, NewPermanentError(fmt.Errorf("ollama: invalid host: %w", err))
	}
	return &OllamaClient{client: ollama.New(*u), model: orDefault(cfg.Model, DefaultOllamaModel)}, nil
}

func (o *OllamaClient) Name() string { return "ollama" }
func (o *OllamaClient) Close() error { return nil }

// Generate runs the blocking client call in a goroutine so ctx can abandon it.
func (o *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := o.generate(orDefault(req.Model, o.model), req.System, req.Prompt)
		if err != nil {
			err = transportError("ollama", err)
		}
		ch <- result{text: strings.TrimSpace(text), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		if r.text == "" {
			return "", ErrEmptyResponse
		}
		return r.text, nil
	}
}

func (o *OllamaClient) generate(model, system, prompt string) (string, error) {
	gen := o.client.Generate
	if system == "" {
		res, err := o.client.Generate(gen.WithModel(model), gen.WithPrompt(prompt))
		if err != nil {
			return "", err
		}
		return res.Response, nil
	}
	res, err := o.client.Generate(gen.WithModel(model), gen.WithSystem(system), gen.WithPrompt(prompt))
	if err != nil {
		return "", err
	}
	return res.Response, nil
}
