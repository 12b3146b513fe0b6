package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/tokens"
)

// ErrorKind is the stable error taxonomy surfaced through the transport
// error envelope.
type ErrorKind string

// Error kinds. Recoverable conditions (partial analyzer failure, degraded
// retrieval, low-confidence tokens) never appear here — they become run
// warnings instead.
const (
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindUpstreamAuth      ErrorKind = "UpstreamAuth"
	KindUpstreamRateLimit ErrorKind = "UpstreamRateLimit"
	KindUpstreamUnavail   ErrorKind = "UpstreamUnavailable"
	KindInternalTimeout   ErrorKind = "InternalTimeout"
	KindCancelled         ErrorKind = "Cancelled"
	KindInternalInvariant ErrorKind = "InternalInvariant"
)

// RunError is the terminal error of a failed run: a stable kind, a
// user-safe message, and the rate-limit hint when applicable. Messages
// never carry stack traces, credentials, or prompt contents.
type RunError struct {
	Kind       ErrorKind `json:"kind"`
	Stage      string    `json:"stage,omitempty"`
	Message    string    `json:"message"`
	RetryAfter int       `json:"retry_after,omitempty"`
	Retryable  bool      `json:"retryable"`
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Classify maps a stage error onto the taxonomy.
func Classify(stage string, err error) *RunError {
	var already *RunError
	if errors.As(err, &already) {
		return already
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return &RunError{Kind: KindCancelled, Stage: stage, Message: "run cancelled"}
	case errors.Is(err, context.DeadlineExceeded):
		return &RunError{Kind: KindInternalTimeout, Stage: stage, Message: fmt.Sprintf("%s stage exceeded its time budget", stage), Retryable: true}
	case errors.Is(err, tokens.ErrInvalidInput):
		return &RunError{Kind: KindInvalidInput, Stage: stage, Message: err.Error()}
	case errors.Is(err, figma.ErrAuth), errors.Is(err, llm.ErrAuth):
		return &RunError{Kind: KindUpstreamAuth, Stage: stage, Message: "upstream credentials rejected"}
	case errors.Is(err, figma.ErrNotFound):
		return &RunError{Kind: KindInvalidInput, Stage: stage, Message: "figma file not found"}
	case errors.Is(err, figma.ErrRateLimit):
		return &RunError{Kind: KindUpstreamRateLimit, Stage: stage, Message: "figma rate limit exceeded", RetryAfter: 60, Retryable: true}
	case errors.Is(err, llm.ErrUnavailable):
		return &RunError{Kind: KindUpstreamUnavail, Stage: stage, Message: "LLM provider unavailable after retries", Retryable: true}
	}
	if rle, ok := llm.IsRateLimit(err); ok {
		return &RunError{Kind: KindUpstreamRateLimit, Stage: stage, Message: "LLM rate limit exceeded", RetryAfter: rle.RetryAfter, Retryable: true}
	}
	return &RunError{Kind: KindInternalInvariant, Stage: stage, Message: fmt.Sprintf("%s stage failed: %v", stage, err)}
}
