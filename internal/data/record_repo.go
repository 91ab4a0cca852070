// Package data provides PostgreSQL-backed repositories for records, bulk
// jobs, and dead-letter publishes.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
)

// RepoConfig holds shared configuration options for data-layer repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

func (c RepoConfig) timeProvider() TimeProvider {
	if c.TimeProvider != nil {
		return c.TimeProvider
	}
	return &RealTimeProvider{}
}

func (c RepoConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// RecordRepo provides database operations for stored records.
type RecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.RecordRepository = (*RecordRepo)(nil)

// NewRecordRepo creates a new RecordRepo instance.
func NewRecordRepo(db *sql.DB, cfg RepoConfig) *RecordRepo {
	return &RecordRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger(),
	}
}

const recordColumns = `id, tenant, kind, document, created_at, updated_at`

// Create inserts a new record, generating an id when the request omits one.
func (r *RecordRepo) Create(
	ctx context.Context,
	tenant string,
	req *model.CreateRecordRequest,
) (*model.Record, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if req == nil {
		return nil, errors.New("create record request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO records (id, tenant, kind, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+recordColumns,
		id, tenant, req.Kind, []byte(req.Document), now)

	rec, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

// GetByID fetches one record scoped to the tenant.
func (r *RecordRepo) GetByID(ctx context.Context, tenant, id string) (*model.Record, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE tenant = $1 AND id = $2`,
		tenant, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// Update replaces the document of an existing record.
func (r *RecordRepo) Update(
	ctx context.Context,
	tenant string,
	rec *model.Record,
) (*model.Record, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if rec == nil || rec.ID == "" {
		return nil, errors.New("record with id is required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE records
		SET document = $3, updated_at = $4
		WHERE tenant = $1 AND id = $2
		RETURNING `+recordColumns,
		tenant, rec.ID, []byte(rec.Document), now)

	updated, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("update record: %w", err)
	}
	return updated, nil
}

// Delete removes one record scoped to the tenant.
func (r *RecordRepo) Delete(ctx context.Context, tenant, id string) error {
	if strings.TrimSpace(tenant) == "" {
		return ErrTenantRequired
	}
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM records WHERE tenant = $1 AND id = $2`, tenant, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

const defaultListLimit = 100

// List returns records of one kind in id order.
func (r *RecordRepo) List(
	ctx context.Context,
	tenant string,
	opts *model.RecordListOptions,
) ([]*model.Record, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if opts == nil {
		opts = &model.RecordListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + recordColumns + ` FROM records WHERE tenant = $1`
	args := []any{tenant}
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if opts.UpdatedAfter != nil {
		args = append(args, *opts.UpdatedAfter)
		query += fmt.Sprintf(" AND updated_at > $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan record: %w", scanErr)
		}
		out = append(out, rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate records: %w", rowsErr)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var rec model.Record
	var doc []byte
	if err := row.Scan(&rec.ID, &rec.Tenant, &rec.Kind, &doc,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Document = doc
	return &rec, nil
}
