package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for upstream LLM failures.
var (
	// ErrAuth means the provider rejected the credentials (401/403).
	ErrAuth = errors.New("llm: authentication rejected")

	// ErrUnavailable means the provider kept returning 5xx after retries.
	ErrUnavailable = errors.New("llm: provider unavailable")
)

// RateLimitError is returned on provider 429 responses. RetryAfter carries
// the provider's Retry-After value in seconds (0 when absent).
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("llm: rate limited, retry after %ds", e.RetryAfter)
}

// IsRateLimit extracts a RateLimitError from an error chain.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
