package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"repolens/internal/evidence"
	"repolens/internal/ratelimit"
)

// Options configures the GitHub client shared by every provider.
type Options struct {
	Token      string
	BaseURL    string // GitHub Enterprise or test server; must end in "/"
	HTTPClient *http.Client
	// RPS throttles outgoing calls; zero disables throttling.
	RPS   float64
	Burst int
	// MaxFileBytes caps each rendered file; MaxPayloadBytes caps a provider payload.
	MaxFileBytes    int
	MaxPayloadBytes int
}

const (
	defaultMaxFileBytes    = 8000
	defaultMaxPayloadBytes = 24000
)

// Client wraps go-github with payload limits and error normalization.
type Client struct {
	gh         *gh.Client
	limiter    *ratelimit.Limiter
	fileCap    int
	payloadCap int
}

// NewClient builds a client. An empty token yields unauthenticated access
// with GitHub's lower rate limits.
func NewClient(opts Options) (*Client, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	c := gh.NewClient(hc)
	if tok := strings.TrimSpace(opts.Token); tok != "" {
		c = c.WithAuthToken(tok)
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github: invalid base url: %w", err)
		}
		c.BaseURL = u
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxFileBytes
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	return &Client{
		gh:         c,
		limiter:    ratelimit.New(opts.RPS, opts.Burst),
		fileCap:    opts.MaxFileBytes,
		payloadCap: opts.MaxPayloadBytes,
	}, nil
}

// Limiter exposes the shared request limiter for fetcher middleware.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

// Close stops background limiter work.
func (c *Client) Close() error {
	c.limiter.Stop()
	return nil
}

// normalize maps go-github and transport errors to evidence failure kinds.
func normalize(provider string, err error) error {
	if err == nil {
		return nil
	}
	var perr *evidence.ProviderError
	if errors.As(err, &perr) {
		return err
	}
	var (
		rl    *gh.RateLimitError
		abuse *gh.AbuseRateLimitError
		resp  *gh.ErrorResponse
		tfa   *gh.TwoFactorAuthError
		nerr  net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return evidence.NewProviderError(provider, evidence.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return evidence.NewProviderError(provider, evidence.ErrTimeout, err)
	case errors.As(err, &rl), errors.As(err, &abuse):
		return evidence.NewProviderError(provider, evidence.ErrRateLimited, err)
	case errors.As(err, &tfa):
		return evidence.NewProviderError(provider, evidence.ErrAuth, err)
	case errors.As(err, &resp) && resp.Response != nil:
		return evidence.NewProviderError(provider, kindForStatus(resp.Response.StatusCode), err)
	case errors.As(err, &nerr) && nerr.Timeout():
		return evidence.NewProviderError(provider, evidence.ErrTimeout, err)
	default:
		return evidence.NewProviderError(provider, evidence.ErrTransient, err)
	}
}

func kindForStatus(code int) error {
	switch {
	case code == http.StatusNotFound, code == http.StatusConflict,
		code == http.StatusUnprocessableEntity, code == http.StatusGone:
		// 409 is an empty repository; 422 an unsearchable query.
		return evidence.ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return evidence.ErrAuth
	case code == http.StatusTooManyRequests:
		return evidence.ErrRateLimited
	default:
		return evidence.ErrTransient
	}
}
