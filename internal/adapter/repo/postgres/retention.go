package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionService prunes postings whose last scrape is older than the
// retention window. Stale rows stop mattering for matching long before
// they stop costing storage, so the sweep runs on a slow cadence.
type RetentionService struct {
	Pool          PgxPool
	RetentionDays int
	Log           *slog.Logger
}

// NewRetentionService creates a retention sweeper. A non-positive
// retention defaults to 90 days.
func NewRetentionService(pool PgxPool, retentionDays int, log *slog.Logger) *RetentionService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetentionService{Pool: pool, RetentionDays: retentionDays, Log: log}
}

// PruneOldJobs deletes jobs last scraped before the retention cutoff and
// returns how many rows went away.
func (s *RetentionService) PruneOldJobs(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)
	tag, err := s.Pool.Exec(ctx, `DELETE FROM jobs WHERE scraped_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=postgres.PruneOldJobs: %w", err)
	}
	deleted := tag.RowsAffected()
	s.Log.Info("retention sweep completed",
		slog.Int64("deleted_jobs", deleted),
		slog.Time("cutoff", cutoff))
	return deleted, nil
}

// RunPeriodic sweeps on the given interval until ctx is cancelled. A
// non-positive interval defaults to daily.
func (s *RetentionService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.PruneOldJobs(ctx); err != nil {
		s.Log.Error("initial retention sweep failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("retention service stopping")
			return
		case <-ticker.C:
			if _, err := s.PruneOldJobs(ctx); err != nil {
				s.Log.Error("retention sweep failed", slog.Any("error", err))
			}
		}
	}
}
