// Package cleanup provides data retention for persisted runs and cache
// entries.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/componentforge/forge/pkg/database"
)

// Retention tunes the cleanup service.
type Retention struct {
	// RunRetention keeps persisted runs this long (default 30 days).
	RunRetention time.Duration
	// CacheRetention keeps generation cache entries this long (default 7
	// days). Cache keys embed every input hash, so expiry is purely a
	// storage bound, never a correctness concern.
	CacheRetention time.Duration
	// Interval between cleanup passes (default 1 hour).
	Interval time.Duration
}

func (r *Retention) applyDefaults() {
	if r.RunRetention == 0 {
		r.RunRetention = 30 * 24 * time.Hour
	}
	if r.CacheRetention == 0 {
		r.CacheRetention = 7 * 24 * time.Hour
	}
	if r.Interval == 0 {
		r.Interval = time.Hour
	}
}

// Service periodically enforces retention policies:
//   - Deletes runs past the run retention window
//   - Deletes generation cache entries past the cache retention window
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	retention Retention
	client    *database.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(retention Retention, client *database.Client) *Service {
	retention.applyDefaults()
	return &Service{retention: retention, client: client}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"run_retention", s.retention.RunRetention,
		"cache_retention", s.retention.CacheRetention,
		"interval", s.retention.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteOldRuns(ctx)
	s.deleteStaleCache(ctx)
}

func (s *Service) deleteOldRuns(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention.RunRetention)
	res, err := s.client.DB().ExecContext(ctx, `DELETE FROM runs WHERE created_at < $1`, cutoff)
	if err != nil {
		slog.Error("Retention: delete old runs failed", "error", err)
		return
	}
	if count, _ := res.RowsAffected(); count > 0 {
		slog.Info("Retention: deleted old runs", "count", count)
	}
}

func (s *Service) deleteStaleCache(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention.CacheRetention)
	res, err := s.client.DB().ExecContext(ctx, `DELETE FROM generation_cache WHERE created_at < $1`, cutoff)
	if err != nil {
		slog.Error("Retention: delete stale cache entries failed", "error", err)
		return
	}
	if count, _ := res.RowsAffected(); count > 0 {
		slog.Info("Retention: deleted stale cache entries", "count", count)
	}
}
