// Package config resolves service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config is the resolved, validated service configuration.
type Config struct {
	// LLM provider
	OpenAIAPIKey   string
	LLMModel       string
	EmbeddingModel string

	// Stores
	VectorIndexURL string // empty = in-process vector store
	DatabaseURL    string // empty = in-memory cache only, no persistence

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string

	// Pipeline
	PipelineVersion      string
	MaxFixAttempts       int
	GenerationTimeout    time.Duration
	MaxConcurrentRuns    int
	LLMConcurrency       int
	FigmaCacheTTL        time.Duration
	PatternLibraryDir    string
	ExtractorTimeout     time.Duration
	ProposerTimeout      time.Duration
	RetrieverTimeout     time.Duration
	AggregatorTimeout    time.Duration
	RetrievalTopK        int
	FusionWeightBM25     float64
	FusionWeightSemantic float64

	// HTTP
	HTTPAddr string
}

// Load reads configuration from the environment, applies defaults, and
// validates the result. OPENAI_API_KEY is the only hard requirement.
func Load() (*Config, error) {
	cfg := &Config{
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		LLMModel:             envOr("LLM_MODEL", "gpt-4o-2024-08-06"),
		EmbeddingModel:       envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		VectorIndexURL:       os.Getenv("VECTOR_INDEX_URL"),
		DatabaseURL:          envOr("CACHE_URL", os.Getenv("DATABASE_URL")),
		TracingEnabled:       envBool("TRACING_ENABLED", false),
		TracingEndpoint:      os.Getenv("TRACING_ENDPOINT"),
		PipelineVersion:      envOr("PIPELINE_VERSION", "1"),
		MaxFixAttempts:       envInt("MAX_FIX_ATTEMPTS", 2),
		GenerationTimeout:    time.Duration(envInt("GENERATION_TIMEOUT_MS", 150000)) * time.Millisecond,
		MaxConcurrentRuns:    envInt("MAX_CONCURRENT_RUNS", runtime.NumCPU()),
		LLMConcurrency:       envInt("LLM_CONCURRENCY", 8),
		FigmaCacheTTL:        envDuration("FIGMA_CACHE_TTL", 5*time.Minute),
		PatternLibraryDir:    envOr("PATTERN_LIBRARY_DIR", "patterns"),
		ExtractorTimeout:     envDuration("EXTRACTOR_TIMEOUT", 60*time.Second),
		ProposerTimeout:      envDuration("PROPOSER_TIMEOUT", 30*time.Second),
		RetrieverTimeout:     envDuration("RETRIEVER_TIMEOUT", 5*time.Second),
		AggregatorTimeout:    envDuration("AGGREGATOR_TIMEOUT", 15*time.Second),
		RetrievalTopK:        envInt("RETRIEVAL_TOP_K", 3),
		FusionWeightBM25:     envFloat("FUSION_WEIGHT_BM25", 0.3),
		FusionWeightSemantic: envFloat("FUSION_WEIGHT_SEMANTIC", 0.7),
		HTTPAddr:             envOr("HTTP_ADDR", ":8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		"llm_model", cfg.LLMModel,
		"embedding_model", cfg.EmbeddingModel,
		"pipeline_version", cfg.PipelineVersion,
		"max_fix_attempts", cfg.MaxFixAttempts,
		"persistence", cfg.DatabaseURL != "")

	return cfg, nil
}

func (c *Config) validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.MaxFixAttempts < 0 {
		return fmt.Errorf("MAX_FIX_ATTEMPTS must be >= 0, got %d", c.MaxFixAttempts)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT_MS must be positive")
	}
	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be >= 1, got %d", c.MaxConcurrentRuns)
	}
	if c.RetrievalTopK < 1 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be >= 1, got %d", c.RetrievalTopK)
	}
	sum := c.FusionWeightBM25 + c.FusionWeightSemantic
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("fusion weights must sum to 1.0, got %g", sum)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Invalid float in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
