package pipeline

import (
	"context"
	"errors"

	"repolens/internal/gather"
	"repolens/internal/synth"
)

var (
	// ErrInvalidRequest marks a malformed request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoEvidence is matched when every selected provider failed.
	ErrNoEvidence = gather.ErrNoEvidence
)

// Error codes returned by Kind.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeNoEvidence      = "no_evidence"
	CodeSynthesisFailed = "synthesis_failed"
	CodeCanceled        = "canceled"
	CodeInternal        = "internal"
)

// Kind maps an error returned by Answer or Explain to a stable code.
func Kind(err error) string {
	var se *synth.SynthesisError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ErrNoEvidence):
		return CodeNoEvidence
	case errors.As(err, &se):
		return CodeSynthesisFailed
	case errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
