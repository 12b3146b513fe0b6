package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/pipeline"
)

// generateHandler handles POST /api/v1/generate: a synchronous generation
// from pre-approved tokens and requirements. The full async pipeline lives
// under POST /api/v1/runs.
func (s *Server) generateHandler(c *echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Tokens == nil {
		return badRequest(c, "tokens field is required")
	}
	if req.Requirements == nil {
		return badRequest(c, "requirements field is required")
	}
	if req.PatternID != "" {
		if _, ok := s.registry.Get(req.PatternID); !ok {
			return badRequest(c, "pattern "+req.PatternID+" not found")
		}
	}

	result := s.orchestrator.Run(c.Request().Context(), pipeline.Input{
		Tokens:       req.Tokens,
		Requirements: req.Requirements,
		PatternID:    req.PatternID,
		Description:  "direct-generation",
	})
	if result.Status == models.RunFailed || result.Status == models.RunCancelled {
		return writeRunError(c, result.Context.Error)
	}
	return c.JSON(http.StatusOK, result.Code)
}

// retrievalSearchHandler handles POST /api/v1/retrieval/search.
func (s *Server) retrievalSearchHandler(c *echo.Context) error {
	var req RetrievalSearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Requirements == nil {
		return badRequest(c, "requirements field is required")
	}

	result, warnings, err := s.retriever.Search(c.Request().Context(), req.Requirements)
	if err != nil {
		return writeRunError(c, pipeline.Classify(pipeline.StageRetrieve, err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patterns":           result.Patterns,
		"retrieval_metadata": result.Metadata,
		"warnings":           warnings,
	})
}

// listPatternsHandler handles GET /api/v1/patterns.
func (s *Server) listPatternsHandler(c *echo.Context) error {
	all := s.registry.All()
	out := make([]PatternSummary, 0, len(all))
	for _, p := range all {
		out = append(out, PatternSummary{
			ID:            p.ID,
			Name:          p.Name,
			ComponentType: p.Metadata.ComponentType,
			Version:       p.Version,
			Description:   p.Metadata.Description,
		})
	}
	return c.JSON(http.StatusOK, out)
}
