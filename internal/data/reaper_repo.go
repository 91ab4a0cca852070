package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
)

// ReaperRepo provides cross-tenant cleanup operations for the reaper service.
type ReaperRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.ReaperRepository = (*ReaperRepo)(nil)

// NewReaperRepo creates a new ReaperRepo instance.
func NewReaperRepo(db *sql.DB, cfg RepoConfig) *ReaperRepo {
	return &ReaperRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
	}
}

// FailStaleJobs fails running jobs whose last counter flush is older than
// maxAge. Reindex jobs get the id-publishing failure variant so their state
// machine stays consistent.
func (r *ReaperRepo) FailStaleJobs(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	now := r.timeProvider.Now().UTC()
	cutoff := now.Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET status = CASE kind
		      WHEN 'reindex' THEN 'id_publishing_failed'
		      ELSE 'failed'
		    END,
		    last_error = 'job stalled: no progress within ' || $1::text,
		    updated_at = $2
		WHERE (tenant, id) IN (
		  SELECT tenant, id FROM bulk_jobs
		  WHERE status IN ('in_progress', 'ids_published')
		    AND updated_at < $3
		  LIMIT $4
		)`,
		maxAge.String(), now, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return rowsAffected(res)
}

// DeleteOldJobs deletes jobs in the given terminal statuses older than MaxAge.
func (r *ReaperRepo) DeleteOldJobs(ctx context.Context, p core.DeleteOldJobsParams) (int64, error) {
	cutoff := r.timeProvider.Now().UTC().Add(-p.MaxAge)

	statuses := make([]string, 0, len(p.Statuses))
	for _, s := range p.Statuses {
		if !s.Terminal() {
			return 0, fmt.Errorf("refusing to delete non-terminal status %q", s)
		}
		statuses = append(statuses, string(s))
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM bulk_jobs
		WHERE (tenant, id) IN (
		  SELECT tenant, id FROM bulk_jobs
		  WHERE status = ANY($1)
		    AND updated_at < $2
		  LIMIT $3
		)`,
		statuses, cutoff, p.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return rowsAffected(res)
}

// DeleteOldFailedPublishes deletes dead-letter records older than maxAge.
func (r *ReaperRepo) DeleteOldFailedPublishes(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	cutoff := r.timeProvider.Now().UTC().Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM failed_publishes
		WHERE (tenant, id) IN (
		  SELECT tenant, id FROM failed_publishes
		  WHERE incident_date_time < $1
		  LIMIT $2
		)`,
		cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old failed publishes: %w", err)
	}
	return rowsAffected(res)
}

// TerminalStatuses lists every terminal job status, for cleanup queries.
func TerminalStatuses() []model.JobStatus {
	return []model.JobStatus{
		model.JobStatusCompleted,
		model.JobStatusCancelled,
		model.JobStatusFailed,
		model.JobStatusIDPublishingCancelled,
		model.JobStatusIDPublishingFailed,
	}
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
