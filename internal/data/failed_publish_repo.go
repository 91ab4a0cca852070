package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
)

// FailedPublishRepo provides database operations for dead-letter records.
// Records are append-only; there is no update or delete path.
type FailedPublishRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.FailedPublishRepository = (*FailedPublishRepo)(nil)

// NewFailedPublishRepo creates a new FailedPublishRepo instance.
func NewFailedPublishRepo(db *sql.DB, cfg RepoConfig) *FailedPublishRepo {
	return &FailedPublishRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
	}
}

const failedPublishColumns = `
  id,
  tenant,
  topic_name,
  partition_key,
  payload,
  error,
  incident_date_time
`

// Create records one exhausted publish attempt.
func (r *FailedPublishRepo) Create(
	ctx context.Context,
	req *model.CreateFailedPublishRequest,
) (*model.FailedPublish, error) {
	if req == nil {
		return nil, errors.New("create failed publish request is required")
	}
	if strings.TrimSpace(req.Tenant) == "" {
		return nil, ErrTenantRequired
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO failed_publishes
		  (id, tenant, topic_name, partition_key, payload, error, incident_date_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+failedPublishColumns,
		uuid.NewString(), req.Tenant, req.TopicName, req.PartitionKey,
		req.Payload, req.Error, r.timeProvider.Now().UTC())

	created, err := scanFailedPublish(row)
	if err != nil {
		return nil, fmt.Errorf("insert failed publish: %w", err)
	}
	return created, nil
}

// GetByID fetches one dead-letter record scoped to the tenant.
func (r *FailedPublishRepo) GetByID(ctx context.Context, tenant, id string) (*model.FailedPublish, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+failedPublishColumns+` FROM failed_publishes WHERE tenant = $1 AND id = $2`,
		tenant, id)

	rec, err := scanFailedPublish(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrFailedPublishNotFound
		}
		return nil, fmt.Errorf("get failed publish: %w", err)
	}
	return rec, nil
}

// List returns dead-letter records, most recent incident first.
func (r *FailedPublishRepo) List(
	ctx context.Context,
	tenant string,
	opts *model.FailedPublishListOptions,
) ([]*model.FailedPublish, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if opts == nil {
		opts = &model.FailedPublishListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + failedPublishColumns + ` FROM failed_publishes WHERE tenant = $1`
	args := []any{tenant}
	if opts.TopicName != "" {
		args = append(args, opts.TopicName)
		query += fmt.Sprintf(" AND topic_name = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY incident_date_time DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed publishes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.FailedPublish
	for rows.Next() {
		rec, scanErr := scanFailedPublish(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan failed publish: %w", scanErr)
		}
		out = append(out, rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate failed publishes: %w", rowsErr)
	}
	return out, nil
}

func scanFailedPublish(row rowScanner) (*model.FailedPublish, error) {
	var rec model.FailedPublish
	if err := row.Scan(&rec.ID, &rec.Tenant, &rec.TopicName, &rec.PartitionKey,
		&rec.Payload, &rec.Error, &rec.IncidentDateTime); err != nil {
		return nil, err
	}
	return &rec, nil
}
