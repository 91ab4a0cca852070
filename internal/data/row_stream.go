package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/data/pgxutil"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// RowSource opens storage cursors as push streams. Each open call dedicates
// one pooled connection to the stream for its lifetime; the producer goroutine
// reads rows inside a repeatable-read transaction so the stream sees a single
// snapshot even while writes continue.
type RowSource struct {
	DB     *sql.DB
	logger *slog.Logger
}

var _ core.RowSourceOpener = (*RowSource)(nil)

// NewRowSource creates a new RowSource instance.
func NewRowSource(db *sql.DB, cfg RepoConfig) *RowSource {
	return &RowSource{
		DB:     db,
		logger: cfg.logger(),
	}
}

// OpenIDStream streams record identifiers of one kind, in id order.
func (r *RowSource) OpenIDStream(
	ctx context.Context,
	tenant string,
	kind model.RecordKind,
) (stream.RowStream, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid record kind: %q", kind)
	}
	return r.open(ctx, streamQuery{
		sql:  `SELECT id FROM records WHERE tenant = $1 AND kind = $2 ORDER BY id`,
		args: []any{tenant, kind},
		scan: func(rows pgx.Rows) (stream.Row, error) {
			var id string
			if err := rows.Scan(&id); err != nil {
				return stream.Row{}, err
			}
			return stream.Row{ID: id}, nil
		},
	}), nil
}

// OpenRecordStream streams identifiers plus document snapshots, honoring the
// kind and updated-after filters. Limit and offset are ignored: a stream is
// the full result set.
func (r *RowSource) OpenRecordStream(
	ctx context.Context,
	tenant string,
	opts *model.RecordListOptions,
) (stream.RowStream, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrTenantRequired
	}
	if opts == nil {
		opts = &model.RecordListOptions{}
	}

	query := `SELECT id, document FROM records WHERE tenant = $1`
	args := []any{tenant}
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if opts.UpdatedAfter != nil {
		args = append(args, *opts.UpdatedAfter)
		query += fmt.Sprintf(" AND updated_at > $%d", len(args))
	}
	query += " ORDER BY id"

	return r.open(ctx, streamQuery{
		sql:  query,
		args: args,
		scan: func(rows pgx.Rows) (stream.Row, error) {
			var row stream.Row
			if err := rows.Scan(&row.ID, &row.Document); err != nil {
				return stream.Row{}, err
			}
			return row, nil
		},
	}), nil
}

type streamQuery struct {
	sql  string
	args []any
	scan func(pgx.Rows) (stream.Row, error)
}

// open starts the producer goroutine and returns immediately. The consumer
// drives delivery through the stream's Start/Pause/Resume surface; closing the
// stream unblocks a pending Push and ends the transaction.
func (r *RowSource) open(ctx context.Context, q streamQuery) *stream.PushStream {
	ps := stream.NewPushStream()

	go func() {
		err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
			Opts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
			Fn: func(tx pgx.Tx) error {
				rows, err := tx.Query(ctx, q.sql, q.args...)
				if err != nil {
					return fmt.Errorf("open row stream: %w", err)
				}
				defer rows.Close()
				for rows.Next() {
					row, scanErr := q.scan(rows)
					if scanErr != nil {
						return fmt.Errorf("scan stream row: %w", scanErr)
					}
					if !ps.Push(row) {
						// consumer closed the stream; stop reading
						return nil
					}
				}
				if rowsErr := rows.Err(); rowsErr != nil {
					return fmt.Errorf("iterate stream rows: %w", rowsErr)
				}
				return nil
			},
		})
		if err != nil {
			r.logger.Error("row stream failed", "error", err)
			ps.Abort(err)
			return
		}
		ps.End()
	}()

	return ps
}
