// Package llm provides language-model backends behind one small interface.
// Backends only make the API call; rate limiting, retries, logging and hooks
// are layered on with Middleware.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure kinds reported by every backend.
var (
	ErrAuth          = errors.New("llm: authentication failed")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrTransient     = errors.New("llm: transient failure")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Request carries one generation call.
type Request struct {
	Prompt    string
	System    string
	Model     string
	MaxTokens int
	// Temperature is left to the backend default when nil.
	Temperature *float32
}

// Backend generates text for a prompt.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

const maxErrBody = 2048

// statusError maps an HTTP failure to a kinded error. Auth failures and
// rejected requests are permanent.
func statusError(backend string, code int, body string) error {
	if len(body) > maxErrBody {
		body = body[:maxErrBody]
	}
	detail := fmt.Errorf("%s: unexpected status %d: %s", backend, code, strings.TrimSpace(body))
	switch {
	case code == 401 || code == 403:
		return NewPermanentError(errors.Join(ErrAuth, detail))
	case code == 429:
		return errors.Join(ErrRateLimited, detail)
	case code >= 500 || code == 408:
		return errors.Join(ErrTransient, detail)
	default:
		return NewPermanentError(detail)
	}
}

// transportError wraps a failure that never produced a response.
func transportError(backend string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(ErrTransient, fmt.Errorf("%s: %w", backend, err))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
