// Package api provides the HTTP API for ComponentForge.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/componentforge/forge/pkg/config"
	"github.com/componentforge/forge/pkg/database"
	"github.com/componentforge/forge/pkg/events"
	"github.com/componentforge/forge/pkg/patterns"
	"github.com/componentforge/forge/pkg/pipeline"
	"github.com/componentforge/forge/pkg/queue"
	"github.com/componentforge/forge/pkg/requirements"
	"github.com/componentforge/forge/pkg/retrieval"
	"github.com/componentforge/forge/pkg/tokens"
)

// maxUploadBytes bounds request bodies; screenshot uploads dominate.
const maxUploadBytes = 12 * 1024 * 1024

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config

	orchestrator *pipeline.Orchestrator
	workerPool   *queue.WorkerPool
	extractor    *tokens.Extractor
	proposer     *requirements.Proposer
	retriever    *retrieval.Retriever
	registry     *patterns.Registry
	broker       *events.Broker
	connManager  *events.ConnectionManager
	store        *database.Store  // nil when persistence is disabled
	dbClient     *database.Client // nil when persistence is disabled
}

// NewServer creates the API server with Echo v5.
func NewServer(
	cfg *config.Config,
	orchestrator *pipeline.Orchestrator,
	workerPool *queue.WorkerPool,
	extractor *tokens.Extractor,
	proposer *requirements.Proposer,
	retriever *retrieval.Retriever,
	registry *patterns.Registry,
	broker *events.Broker,
) *Server {
	e := echo.New()

	s := &Server{
		echo:         e,
		cfg:          cfg,
		orchestrator: orchestrator,
		workerPool:   workerPool,
		extractor:    extractor,
		proposer:     proposer,
		retriever:    retriever,
		registry:     registry,
		broker:       broker,
		connManager:  events.NewConnectionManager(broker),
	}
	s.setupRoutes()
	return s
}

// SetStore wires the optional persistence collaborator.
func (s *Server) SetStore(client *database.Client, store *database.Store) {
	s.dbClient = client
	s.store = store
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(maxUploadBytes))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/ws", s.wsHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/generate", s.generateHandler)
	v1.POST("/tokens/extract/screenshot", s.extractScreenshotHandler)
	v1.POST("/tokens/extract/figma", s.extractFigmaHandler)
	v1.POST("/retrieval/search", s.retrievalSearchHandler)
	v1.POST("/runs", s.submitRunHandler)
	v1.GET("/runs", s.listRunsHandler)
	v1.GET("/runs/:id", s.getRunHandler)
	v1.GET("/runs/:id/events", s.runEventsHandler)
	v1.POST("/runs/:id/cancel", s.cancelRunHandler)
	v1.GET("/patterns", s.listPatternsHandler)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener (tests use a random
// OS-assigned port).
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Echo exposes the router for handler tests.
func (s *Server) Echo() *echo.Echo { return s.echo }
