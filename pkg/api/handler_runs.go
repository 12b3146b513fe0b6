package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/pipeline"
	"github.com/componentforge/forge/pkg/tokens"
)

// submitRunHandler handles POST /api/v1/runs. Multipart bodies carry a
// screenshot; JSON bodies carry a Figma reference. The run executes on the
// worker pool; progress streams via SSE and WebSocket.
func (s *Server) submitRunHandler(c *echo.Context) error {
	input, err := s.bindRunInput(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	runID, err := s.workerPool.Submit(*input)
	if err != nil {
		c.Response().Header().Set("Retry-After", "60")
		return c.JSON(http.StatusTooManyRequests, &ErrorEnvelope{
			Detail: "[UpstreamRateLimit] run queue is full, retry later",
			Code:   string(pipeline.KindUpstreamRateLimit),
		})
	}

	return c.JSON(http.StatusAccepted, &SubmitRunResponse{
		RunID:   runID,
		Status:  "queued",
		Message: "Run submitted for processing",
	})
}

func (s *Server) bindRunInput(c *echo.Context) (*pipeline.Input, error) {
	contentType := c.Request().Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart file field is required")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("unreadable upload")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, tokens.MaxImageBytes+1))
		if err != nil {
			return nil, fmt.Errorf("unreadable upload")
		}
		return &pipeline.Input{
			ImageData:   data,
			MIMEType:    fileHeader.Header.Get("Content-Type"),
			Description: c.FormValue("description"),
		}, nil
	}

	var req SubmitRunRequest
	if err := c.Bind(&req); err != nil {
		return nil, err
	}
	if req.FigmaURL == "" {
		return nil, fmt.Errorf("either a multipart screenshot or a figma_url is required")
	}
	fileKey, err := figma.ParseFileKey(req.FigmaURL)
	if err != nil {
		return nil, err
	}
	return &pipeline.Input{
		FigmaFileKey: fileKey,
		FigmaToken:   req.PersonalAccessToken,
		Description:  req.Description,
	}, nil
}

// getRunHandler handles GET /api/v1/runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("id")

	if result, ok := s.workerPool.Result(runID); ok {
		return c.JSON(http.StatusOK, result)
	}
	if s.store != nil {
		result, err := s.store.GetRun(c.Request().Context(), runID)
		if err == nil {
			return c.JSON(http.StatusOK, result)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusInternalServerError, "run lookup failed")
		}
	}
	return c.JSON(http.StatusNotFound, &ErrorEnvelope{
		Detail: "[InvalidInput] run not found",
		Code:   string(pipeline.KindInvalidInput),
	})
}

// listRunsHandler handles GET /api/v1/runs (persistence required).
func (s *Server) listRunsHandler(c *echo.Context) error {
	if s.store == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	summaries, err := s.store.ListRuns(c.Request().Context(), 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "run listing failed")
	}
	return c.JSON(http.StatusOK, summaries)
}

// cancelRunHandler handles POST /api/v1/runs/:id/cancel.
func (s *Server) cancelRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if !s.workerPool.Cancel(runID) {
		return c.JSON(http.StatusConflict, &ErrorEnvelope{
			Detail: "[InvalidInput] run is not active",
			Code:   string(pipeline.KindInvalidInput),
		})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancelling"})
}

// runEventsHandler handles GET /api/v1/runs/:id/events — the SSE progress
// stream. Any progress events strictly precede the single terminal event;
// the stream closes after the terminal event.
func (s *Server) runEventsHandler(c *echo.Context) error {
	runID := c.Param("id")

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	eventsCh, cancel := s.broker.Subscribe(runID)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-eventsCh:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, payload); err != nil {
				return nil
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
			if event.Event == "complete" || event.Event == "error" {
				return nil
			}
		}
	}
}
