package api

import "github.com/componentforge/forge/pkg/models"

// GenerateRequest is the body of POST /api/v1/generate: a direct generation
// with pre-approved inputs, skipping extraction and proposal.
type GenerateRequest struct {
	PatternID    string                 `json:"pattern_id"`
	Tokens       *models.DesignTokens   `json:"tokens"`
	Requirements *models.RequirementSet `json:"requirements"`
}

// ExtractFigmaRequest is the body of POST /api/v1/tokens/extract/figma.
type ExtractFigmaRequest struct {
	FigmaURL            string `json:"figma_url"`
	PersonalAccessToken string `json:"personal_access_token,omitempty"`
}

// RetrievalSearchRequest is the body of POST /api/v1/retrieval/search.
type RetrievalSearchRequest struct {
	Requirements *models.RequirementSet `json:"requirements"`
}

// SubmitRunRequest is the JSON body of POST /api/v1/runs for Figma-sourced
// runs. Screenshot-sourced runs use multipart form upload instead.
type SubmitRunRequest struct {
	FigmaURL            string `json:"figma_url,omitempty"`
	PersonalAccessToken string `json:"personal_access_token,omitempty"`
	Description         string `json:"description,omitempty"`
}
