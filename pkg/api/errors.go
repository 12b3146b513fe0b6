package api

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/componentforge/forge/pkg/pipeline"
)

// ErrorEnvelope is the wire shape of every error response:
// {"detail": ..., "code": ErrorKind}.
type ErrorEnvelope struct {
	Detail any    `json:"detail"`
	Code   string `json:"code"`
}

// defaultRetryAfterSeconds is sent when a rate-limited upstream reported no
// Retry-After of its own.
const defaultRetryAfterSeconds = 60

// writeRunError maps a terminal RunError onto the HTTP error envelope.
// User-visible messages are prefix-coded by kind so the UI can prepend a
// category icon; they never include stack traces, credentials, or prompts.
func writeRunError(c *echo.Context, runErr *pipeline.RunError) error {
	status := http.StatusInternalServerError
	switch runErr.Kind {
	case pipeline.KindInvalidInput:
		status = http.StatusBadRequest
	case pipeline.KindUpstreamAuth:
		status = http.StatusBadGateway
	case pipeline.KindUpstreamRateLimit:
		status = http.StatusTooManyRequests
		retryAfter := runErr.RetryAfter
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfterSeconds
		}
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	case pipeline.KindUpstreamUnavail:
		status = http.StatusBadGateway
	case pipeline.KindInternalTimeout:
		status = http.StatusGatewayTimeout
	case pipeline.KindCancelled:
		status = 499 // client closed request
	}
	return c.JSON(status, &ErrorEnvelope{
		Detail: fmt.Sprintf("[%s] %s", runErr.Kind, runErr.Message),
		Code:   string(runErr.Kind),
	})
}

// badRequest writes an InvalidInput envelope.
func badRequest(c *echo.Context, detail string) error {
	return c.JSON(http.StatusBadRequest, &ErrorEnvelope{
		Detail: fmt.Sprintf("[%s] %s", pipeline.KindInvalidInput, detail),
		Code:   string(pipeline.KindInvalidInput),
	})
}
