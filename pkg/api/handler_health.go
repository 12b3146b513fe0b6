package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/componentforge/forge/pkg/database"
	"github.com/componentforge/forge/pkg/version"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	response := &HealthResponse{
		Status:      "healthy",
		Version:     version.Full(),
		Patterns:    s.registry.Len(),
		Connections: s.connManager.ConnectionCount(),
	}

	if s.dbClient != nil {
		reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
		response.Database = dbHealth
		if err != nil {
			response.Status = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, response)
		}
	}
	return c.JSON(http.StatusOK, response)
}
