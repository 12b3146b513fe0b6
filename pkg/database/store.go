package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/pipeline"
)

// Store persists run metadata and cached generations. It implements both
// pipeline.RunStore and pipeline.Cache.
type Store struct {
	client *Client
}

// NewStore creates a store over the client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// SaveRun implements pipeline.RunStore. Runs are insert-only; a re-run under
// the same id never happens (ids are UUIDs minted per run).
func (s *Store) SaveRun(ctx context.Context, result *pipeline.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("serialize run %s: %w", result.RunID, err)
	}

	componentType := ""
	patternID := ""
	reportStatus := ""
	if result.Code != nil {
		patternID = result.Code.Metadata.PatternUsed
	}
	if result.Report != nil {
		reportStatus = string(result.Report.Status)
	}
	cacheHit := false
	costUSD := 0.0
	if result.Context != nil {
		cacheHit = result.Context.CacheHit
		costUSD = result.Context.CostUSD
	}

	_, err = s.client.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, component_type, pattern_id, cache_hit, report_status, cost_usd, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.RunID, string(result.Status), componentType, patternID, cacheHit, reportStatus, costUSD, payload)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", result.RunID, err)
	}
	return nil
}

// GetRun loads a persisted run by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*pipeline.Result, error) {
	var payload []byte
	err := s.client.db.QueryRowContext(ctx,
		`SELECT result FROM runs WHERE id = $1`, runID).Scan(&payload)
	if err != nil {
		return nil, err
	}
	var result pipeline.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &result, nil
}

// ListRuns returns recent run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.db.QueryContext(ctx,
		`SELECT id, status, pattern_id, cache_hit, report_status, cost_usd, created_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Status, &r.PatternID, &r.CacheHit, &r.ReportStatus, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	PatternID    string    `json:"pattern_id,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	ReportStatus string    `json:"report_status,omitempty"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// Get implements pipeline.Cache.
func (s *Store) Get(ctx context.Context, key string) (*models.GeneratedCode, bool, error) {
	var payload []byte
	err := s.client.db.QueryRowContext(ctx,
		`SELECT code FROM generation_cache WHERE cache_key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	var code models.GeneratedCode
	if err := json.Unmarshal(payload, &code); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return &code, true, nil
}

// Set implements pipeline.Cache. Concurrent writers of the same key carry
// identical values (the key embeds every input hash), so last-writer-wins
// upsert needs no further coordination.
func (s *Store) Set(ctx context.Context, key string, code *models.GeneratedCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("serialize cache entry: %w", err)
	}
	_, err = s.client.db.ExecContext(ctx,
		`INSERT INTO generation_cache (cache_key, code) VALUES ($1, $2)
		 ON CONFLICT (cache_key) DO UPDATE SET code = EXCLUDED.code`,
		key, payload)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

var (
	_ pipeline.RunStore = (*Store)(nil)
	_ pipeline.Cache    = (*Store)(nil)
)
