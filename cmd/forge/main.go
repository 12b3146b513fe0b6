// ComponentForge server - turns UI designs into production React components
// through a staged, traceable generation pipeline.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/componentforge/forge/pkg/api"
	"github.com/componentforge/forge/pkg/cleanup"
	"github.com/componentforge/forge/pkg/config"
	"github.com/componentforge/forge/pkg/database"
	"github.com/componentforge/forge/pkg/events"
	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/generator"
	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/patterns"
	"github.com/componentforge/forge/pkg/pipeline"
	"github.com/componentforge/forge/pkg/quality"
	"github.com/componentforge/forge/pkg/queue"
	"github.com/componentforge/forge/pkg/requirements"
	"github.com/componentforge/forge/pkg/retrieval"
	"github.com/componentforge/forge/pkg/tokens"
	"github.com/componentforge/forge/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("Starting ComponentForge", "version", version.Full())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pattern library and retrieval indexes.
	registry, err := patterns.LoadDir(cfg.PatternLibraryDir)
	if err != nil {
		log.Fatalf("Failed to load pattern library: %v", err)
	}
	slog.Info("Pattern library loaded", "patterns", registry.Len())

	llmClient := llm.WithMetering(llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.EmbeddingModel, cfg.LLMConcurrency))

	bm25Index, err := retrieval.NewBM25Index(registry.All())
	if err != nil {
		log.Fatalf("Failed to build BM25 index: %v", err)
	}
	defer bm25Index.Close()

	// The vector store embeds the library at startup. Failure here is
	// survivable: the retriever degrades to BM25-only.
	var vectorStore retrieval.VectorStore
	if store, err := retrieval.BuildVectorStore(ctx, llmClient, registry.All()); err != nil {
		slog.Warn("Vector store unavailable, retrieval degraded to BM25-only", "error", err)
	} else {
		vectorStore = store
	}

	// Validation workspaces for the subprocess checkers.
	checkerWorkspace := os.Getenv("CHECKER_WORKSPACE")
	var checkers []generator.Checker
	checkers = append(checkers,
		&generator.TSCChecker{WorkspaceDir: checkerWorkspace},
		&generator.ESLintChecker{WorkspaceDir: checkerWorkspace},
	)

	// Optional persistence.
	var dbClient *database.Client
	var store *database.Store
	var cache pipeline.Cache
	var runStore pipeline.RunStore
	if cfg.DatabaseURL != "" {
		dbClient, err = database.NewClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer dbClient.Close()
		store = database.NewStore(dbClient)
		cache = store
		runStore = store
		slog.Info("Persistence enabled")

		retention := cleanup.NewService(cleanup.Retention{}, dbClient)
		retention.Start(ctx)
		defer retention.Stop()
	}

	broker := events.NewBroker()
	tracer := pipeline.NewTracer(cfg.TracingEnabled, nil)
	defer tracer.Close()

	extractor := tokens.NewExtractor(llmClient, figma.NewClient(cfg.FigmaCacheTTL))
	proposer := requirements.NewProposer(llmClient)
	retriever := retrieval.NewRetriever(registry, bm25Index, vectorStore, llmClient, retrieval.Options{
		TopK:           cfg.RetrievalTopK,
		WeightBM25:     cfg.FusionWeightBM25,
		WeightSemantic: cfg.FusionWeightSemantic,
	})
	gen := generator.NewGenerator(llmClient, patterns.NewGallery(registry), checkers, generator.Options{
		MaxFixAttempts: cfg.MaxFixAttempts,
	})

	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Extractor:  extractor,
		Proposer:   proposer,
		Retriever:  retriever,
		Generator:  gen,
		Aggregator: quality.NewAggregator(),
		Registry:   registry,
		Cache:      cache,
		Tracer:     tracer,
		Progress:   broker,
		Store:      runStore,
	}, pipeline.StageTimeouts{
		Extract:   cfg.ExtractorTimeout,
		Propose:   cfg.ProposerTimeout,
		Retrieve:  cfg.RetrieverTimeout,
		Generate:  cfg.GenerationTimeout,
		Aggregate: cfg.AggregatorTimeout,
	}, cfg.PipelineVersion, cfg.MaxConcurrentRuns)

	pool := queue.NewWorkerPool(orchestrator)
	pool.Start(ctx, cfg.MaxConcurrentRuns)

	server := api.NewServer(cfg, orchestrator, pool, extractor, proposer, retriever, registry, broker)
	if store != nil {
		server.SetStore(dbClient, store)
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	pool.Stop()
	slog.Info("Shutdown complete")
}
