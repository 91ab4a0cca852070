package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
)

// BulkJobRepo provides database operations for bulk job metadata. Status
// writes are conditional UPDATEs, so concurrent actors serialize at the row
// and a terminal status is never overwritten by a stale runner.
type BulkJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.BulkJobRepository = (*BulkJobRepo)(nil)

// NewBulkJobRepo creates a new BulkJobRepo instance.
func NewBulkJobRepo(db *sql.DB, cfg RepoConfig) *BulkJobRepo {
	return &BulkJobRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
	}
}

const bulkJobColumns = `
  id,
  tenant,
  kind,
  status,
  parameters,
  processed,
  published,
  counters,
  last_error,
  submitted_date,
  updated_at
`

// Create persists a new job record. The caller sets the initial status
// (in_progress for a submitted job); id and submitted date are filled in when
// absent.
func (r *BulkJobRepo) Create(ctx context.Context, job *model.BulkJob) (*model.BulkJob, error) {
	if job == nil {
		return nil, errors.New("bulk job is required")
	}
	if strings.TrimSpace(job.Tenant) == "" {
		return nil, ErrTenantRequired
	}
	if !job.Kind.Valid() {
		return nil, fmt.Errorf("invalid job kind: %q", job.Kind)
	}
	if !job.Status.Valid() {
		return nil, fmt.Errorf("invalid job status: %q", job.Status)
	}

	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	submitted := job.SubmittedDate
	if submitted.IsZero() {
		submitted = r.timeProvider.Now().UTC()
	}
	params := job.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	counters, err := marshalCounters(job.Counters)
	if err != nil {
		return nil, err
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO bulk_jobs
		  (id, tenant, kind, status, parameters, processed, published, counters, submitted_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $7)
		RETURNING `+bulkJobColumns,
		id, job.Tenant, job.Kind, job.Status, []byte(params), counters, submitted)

	created, err := scanBulkJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert bulk job: %w", err)
	}
	return created, nil
}

// GetByID fetches one job scoped to the tenant.
func (r *BulkJobRepo) GetByID(ctx context.Context, tenant, id string) (*model.BulkJob, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+bulkJobColumns+` FROM bulk_jobs WHERE tenant = $1 AND id = $2`,
		tenant, id)

	job, err := scanBulkJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrJobNotFound
		}
		return nil, fmt.Errorf("get bulk job: %w", err)
	}
	return job, nil
}

// List returns jobs in reverse submission order.
func (r *BulkJobRepo) List(
	ctx context.Context,
	tenant string,
	opts *model.JobListOptions,
) ([]*model.BulkJob, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if opts == nil {
		opts = &model.JobListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + bulkJobColumns + ` FROM bulk_jobs WHERE tenant = $1`
	args := []any{tenant}
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY submitted_date DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bulk jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.BulkJob
	for rows.Next() {
		job, scanErr := scanBulkJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan bulk job: %w", scanErr)
		}
		out = append(out, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate bulk jobs: %w", rowsErr)
	}
	return out, nil
}

// FetchStatus reads just the status column. This is the poll the runner makes
// at every progress-flush point, so it stays a single-column primary-key read.
func (r *BulkJobRepo) FetchStatus(ctx context.Context, tenant, id string) (model.JobStatus, error) {
	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx,
		`SELECT status FROM bulk_jobs WHERE tenant = $1 AND id = $2`,
		tenant, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch bulk job status: %w", err)
	}
	return status, nil
}

// UpdateCounters flushes progress. Counters never move backwards: GREATEST
// guards against a late flush racing a newer one.
func (r *BulkJobRepo) UpdateCounters(ctx context.Context, p core.UpdateCountersParams) error {
	counters, err := marshalCounters(p.Counters)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET processed = GREATEST(processed, $3),
		    published = GREATEST(published, $4),
		    counters = COALESCE($5, counters),
		    updated_at = $6
		WHERE tenant = $1 AND id = $2`,
		p.Tenant, p.ID, p.Processed, p.Published, counters,
		r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update bulk job counters: %w", err)
	}
	return nil
}

// TransitionStatus applies a conditional status change with a final counter
// flush in the same statement, and returns the status the job holds
// afterwards. When the current status is not in the From set, nothing is
// written and the current status is returned, so the caller never downgrades a
// terminal status it lost the race to.
func (r *BulkJobRepo) TransitionStatus(
	ctx context.Context,
	p core.TransitionStatusParams,
) (model.JobStatus, error) {
	if !p.To.Valid() {
		return "", fmt.Errorf("invalid target status: %q", p.To)
	}
	counters, err := marshalCounters(p.Counters)
	if err != nil {
		return "", err
	}

	from := make([]string, 0, len(p.From))
	for _, s := range p.From {
		from = append(from, string(s))
	}

	var lastError *string
	if p.LastError != "" {
		lastError = &p.LastError
	}

	var status sql.NullString
	err = r.DB.QueryRowContext(ctx, `
		WITH updated AS (
		  UPDATE bulk_jobs
		  SET status = $3,
		      processed = GREATEST(processed, $4),
		      published = GREATEST(published, $5),
		      counters = COALESCE($6, counters),
		      last_error = COALESCE($7, last_error),
		      updated_at = $8
		  WHERE tenant = $1 AND id = $2 AND status = ANY($9)
		  RETURNING status
		)
		SELECT COALESCE(
		  (SELECT status FROM updated),
		  (SELECT status FROM bulk_jobs WHERE tenant = $1 AND id = $2)
		)`,
		p.Tenant, p.ID, p.To, p.Processed, p.Published, counters, lastError,
		r.timeProvider.Now().UTC(), from).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("transition bulk job status: %w", err)
	}
	if !status.Valid {
		return "", model.ErrJobNotFound
	}
	return model.JobStatus(status.String), nil
}

// Cancel moves a non-terminal job to its cancelled variant and returns the
// resulting status. The cancelled variant follows the job's current phase:
// an in-progress reindex that already reached ids_published keeps the
// id-publishing flavour. Cancelling a terminal job returns the terminal
// status unchanged.
func (r *BulkJobRepo) Cancel(ctx context.Context, tenant, id string) (model.JobStatus, error) {
	if strings.TrimSpace(tenant) == "" {
		return "", ErrTenantRequired
	}

	var status sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		WITH updated AS (
		  UPDATE bulk_jobs
		  SET status = CASE kind
		        WHEN 'reindex' THEN 'id_publishing_cancelled'
		        ELSE 'cancelled'
		      END,
		      updated_at = $3
		  WHERE tenant = $1 AND id = $2
		    AND status IN ('in_progress', 'ids_published')
		  RETURNING status
		)
		SELECT COALESCE(
		  (SELECT status FROM updated),
		  (SELECT status FROM bulk_jobs WHERE tenant = $1 AND id = $2)
		)`,
		tenant, id, r.timeProvider.Now().UTC()).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("cancel bulk job: %w", err)
	}
	if !status.Valid {
		return "", model.ErrJobNotFound
	}
	return model.JobStatus(status.String), nil
}

func marshalCounters(counters map[string]model.CategoryCounter) ([]byte, error) {
	if counters == nil {
		return nil, nil
	}
	b, err := json.Marshal(counters)
	if err != nil {
		return nil, fmt.Errorf("marshal counters: %w", err)
	}
	return b, nil
}

func scanBulkJob(row rowScanner) (*model.BulkJob, error) {
	var job model.BulkJob
	var params, counters []byte
	if err := row.Scan(&job.ID, &job.Tenant, &job.Kind, &job.Status, &params,
		&job.Processed, &job.Published, &counters, &job.LastError,
		&job.SubmittedDate, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Parameters = params
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &job.Counters); err != nil {
			return nil, fmt.Errorf("unmarshal counters: %w", err)
		}
	}
	return &job, nil
}
