package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Failure kinds a provider can report.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrAuth        = errors.New("authentication failed")
	ErrTransient   = errors.New("transient network failure")
	ErrTimeout     = errors.New("timed out")
)

// ProviderError attributes a failure to a provider. Kind is one of the
// sentinels above so callers can use errors.Is.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("provider %s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewProviderError builds a ProviderError with the given kind.
func NewProviderError(provider string, kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf maps err to its failure kind name: not_found, rate_limited, auth,
// transient, timeout or unknown.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure may succeed on a later attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// DuplicateProviderError is returned when a name is registered twice.
type DuplicateProviderError struct{ Name string }

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("evidence: provider %q already registered", e.Name)
}

// UnknownProviderError lists names that are not in the registry.
type UnknownProviderError struct{ Names []string }

func (e *UnknownProviderError) Error() string {
	names := append([]string(nil), e.Names...)
	sort.Strings(names)
	return fmt.Sprintf("evidence: unknown provider(s): %s", strings.Join(names, ", "))
}
