package api

import (
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/tokens"
)

// ExtractResponse is the shape of both token-extraction endpoints.
// Confidence is the mean confidence over all extracted token fields.
type ExtractResponse struct {
	Tokens     models.DesignTokens `json:"tokens"`
	Confidence float64             `json:"confidence"`
	Metadata   ExtractMetadata     `json:"metadata"`
}

// ExtractMetadata reports extraction provenance.
type ExtractMetadata struct {
	FallbackPaths []string `json:"fallback_paths,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

func extractResponse(res *tokens.Result) *ExtractResponse {
	return &ExtractResponse{
		Tokens:     res.Tokens,
		Confidence: res.MeanConfidence(),
		Metadata: ExtractMetadata{
			FallbackPaths: res.FallbackPaths,
			Warnings:      res.Warnings,
		},
	}
}

// SubmitRunResponse acknowledges an async run submission.
type SubmitRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Patterns    int    `json:"patterns"`
	Connections int    `json:"ws_connections"`
	Database    any    `json:"database,omitempty"`
}

// PatternSummary is one entry of GET /api/v1/patterns.
type PatternSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ComponentType string `json:"component_type"`
	Version       string `json:"version"`
	Description   string `json:"description"`
}
