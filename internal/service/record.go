package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// RecordServiceOptions groups dependencies for RecordService.
type RecordServiceOptions struct {
	Repo   core.RecordRepository // Required: record repository
	Rows   core.RowSourceOpener  // Required: row source for streaming queries
	Logger *slog.Logger          // Optional: structured logger
}

// RecordService provides business logic for stored record operations,
// including the streaming query path that pushes full result sets over a
// backpressure-aware connection writer.
type RecordService struct {
	repo   core.RecordRepository
	rows   core.RowSourceOpener
	logger *slog.Logger
}

// NewRecordService constructs a new RecordService.
func NewRecordService(opts RecordServiceOptions) (*RecordService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RecordRepository is required")
	}
	if opts.Rows == nil {
		return nil, errors.New("RowSourceOpener is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "record_service")
	}

	return &RecordService{
		repo:   opts.Repo,
		rows:   opts.Rows,
		logger: logger,
	}, nil
}

// MustNewRecordService constructs a new RecordService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewRecordService(opts RecordServiceOptions) *RecordService {
	svc, err := NewRecordService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create RecordService: %v", err))
	}
	return svc
}

// Create validates and stores a new record.
func (s *RecordService) Create(
	ctx context.Context,
	tenant string,
	req *model.CreateRecordRequest,
) (*model.Record, error) {
	if req == nil {
		return nil, errors.New("create record request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec, err := s.repo.Create(ctx, tenant, req)
	if err != nil {
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create record: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "record created",
			"tenant", tenant, "id", rec.ID, "kind", rec.Kind)
	}
	return rec, nil
}

// GetByID returns a record by its id.
func (s *RecordService) GetByID(ctx context.Context, tenant, id string) (*model.Record, error) {
	rec, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// Update replaces a record's document.
func (s *RecordService) Update(
	ctx context.Context,
	tenant string,
	rec *model.Record,
) (*model.Record, error) {
	if rec == nil {
		return nil, errors.New("record is required")
	}
	updated, err := s.repo.Update(ctx, tenant, rec)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	return updated, nil
}

// Delete removes a record.
func (s *RecordService) Delete(ctx context.Context, tenant, id string) error {
	if err := s.repo.Delete(ctx, tenant, id); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// List returns a page of records.
func (s *RecordService) List(
	ctx context.Context,
	tenant string,
	opts *model.RecordListOptions,
) ([]*model.Record, error) {
	recs, err := s.repo.List(ctx, tenant, opts)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

// Stream pushes the full filtered result set through the given connection
// writer, one JSON document per line, pausing the storage cursor whenever the
// connection's write queue is full. It returns the number of rows written.
//
// Errors before the first write are the caller's to report; an error after
// rows have been written means the connection is unusable and the caller must
// drop it.
func (s *RecordService) Stream(
	ctx context.Context,
	tenant string,
	opts *model.RecordListOptions,
	w stream.ChunkWriter,
) (int64, error) {
	src, err := s.rows.OpenRecordStream(ctx, tenant, opts)
	if err != nil {
		return 0, fmt.Errorf("open record stream: %w", err)
	}

	sink := stream.NewResponseSink(w)
	defer func() { _ = sink.Close(context.WithoutCancel(ctx)) }()

	written, err := stream.Pump(ctx, src, sink, stream.PumpOptions{})
	if err != nil {
		return sink.Written(), err
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "record stream completed",
			"tenant", tenant, "rows", written)
	}
	return sink.Written(), nil
}
