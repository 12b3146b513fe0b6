package llm

import (
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAPIError_Auth(t *testing.T) {
	err := classifyAPIError(&openai.APIError{HTTPStatusCode: 401, Message: "bad key"})

	var perm *backoff.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, perm.Err, ErrAuth)
}

func TestClassifyAPIError_RateLimit(t *testing.T) {
	err := classifyAPIError(&openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached. Please try again in 30s."})

	var perm *backoff.PermanentError
	require.ErrorAs(t, err, &perm)

	rle, ok := IsRateLimit(perm.Err)
	require.True(t, ok)
	assert.Equal(t, 30, rle.RetryAfter)
}

func TestClassifyAPIError_RateLimitDefault(t *testing.T) {
	err := classifyAPIError(&openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached."})

	var perm *backoff.PermanentError
	require.ErrorAs(t, err, &perm)

	rle, ok := IsRateLimit(perm.Err)
	require.True(t, ok)
	assert.Equal(t, defaultRetryAfter, rle.RetryAfter)
}

func TestClassifyAPIError_ServerErrorRetryable(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 503}
	err := classifyAPIError(apiErr)

	var perm *backoff.PermanentError
	assert.False(t, errors.As(err, &perm), "5xx must stay retryable")
}

func TestClassifyAPIError_BadRequestPermanent(t *testing.T) {
	err := classifyAPIError(&openai.APIError{HTTPStatusCode: 400, Message: "schema violation"})

	var perm *backoff.PermanentError
	assert.ErrorAs(t, err, &perm)
}

func TestCostUSD(t *testing.T) {
	// 1M prompt tokens of gpt-4o cost $2.50.
	assert.InDelta(t, 2.5, costUSD("gpt-4o-2024-08-06", 1_000_000, 0), 1e-9)
	assert.InDelta(t, 10.0, costUSD("gpt-4o-2024-08-06", 0, 1_000_000), 1e-9)
	assert.InDelta(t, 0.02, costUSD("text-embedding-3-small", 1_000_000, 0), 1e-9)
	assert.Zero(t, costUSD("some-unknown-model", 1000, 1000))
}
