package api

import (
	"errors"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/pipeline"
	"github.com/componentforge/forge/pkg/tokens"
)

// extractScreenshotHandler handles POST /api/v1/tokens/extract/screenshot.
// Accepts a multipart "file" part and returns the extracted token set.
func (s *Server) extractScreenshotHandler(c *echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "multipart file field is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "unreadable upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, tokens.MaxImageBytes+1))
	if err != nil {
		return badRequest(c, "unreadable upload")
	}
	mimeType := fileHeader.Header.Get("Content-Type")

	res, err := s.extractor.ExtractFromImage(c.Request().Context(), data, mimeType)
	if err != nil {
		return writeRunError(c, pipeline.Classify(pipeline.StageExtract, err))
	}
	return c.JSON(http.StatusOK, extractResponse(res))
}

// extractFigmaHandler handles POST /api/v1/tokens/extract/figma.
func (s *Server) extractFigmaHandler(c *echo.Context) error {
	var req ExtractFigmaRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.FigmaURL == "" {
		return badRequest(c, "figma_url is required")
	}
	fileKey, err := figma.ParseFileKey(req.FigmaURL)
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := s.extractor.ExtractFromFigma(c.Request().Context(), fileKey, req.PersonalAccessToken)
	if err != nil {
		if errors.Is(err, figma.ErrAuth) {
			return writeRunError(c, &pipeline.RunError{Kind: pipeline.KindUpstreamAuth, Message: "figma access token rejected"})
		}
		return writeRunError(c, pipeline.Classify(pipeline.StageExtract, err))
	}
	return c.JSON(http.StatusOK, extractResponse(res))
}
