package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
)

// FailedPublishServiceOptions groups dependencies for FailedPublishService.
type FailedPublishServiceOptions struct {
	Repo   core.FailedPublishRepository // Required: dead-letter repository
	Logger *slog.Logger                 // Optional: structured logger
}

// FailedPublishService exposes the dead-letter table for operator
// reconciliation. Records are created by the event sink, never through this
// service.
type FailedPublishService struct {
	repo   core.FailedPublishRepository
	logger *slog.Logger
}

// NewFailedPublishService constructs a new FailedPublishService.
func NewFailedPublishService(opts FailedPublishServiceOptions) (*FailedPublishService, error) {
	if opts.Repo == nil {
		return nil, errors.New("FailedPublishRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "failed_publish_service")
	}

	return &FailedPublishService{
		repo:   opts.Repo,
		logger: logger,
	}, nil
}

// MustNewFailedPublishService constructs a new FailedPublishService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewFailedPublishService(opts FailedPublishServiceOptions) *FailedPublishService {
	svc, err := NewFailedPublishService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create FailedPublishService: %v", err))
	}
	return svc
}

// GetByID returns a dead-letter record by its id.
func (s *FailedPublishService) GetByID(
	ctx context.Context,
	tenant, id string,
) (*model.FailedPublish, error) {
	rec, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		if errors.Is(err, model.ErrFailedPublishNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get failed publish %s: %w", id, err)
	}
	return rec, nil
}

// List returns dead-letter records, most recent incident first.
func (s *FailedPublishService) List(
	ctx context.Context,
	tenant string,
	opts *model.FailedPublishListOptions,
) ([]*model.FailedPublish, error) {
	recs, err := s.repo.List(ctx, tenant, opts)
	if err != nil {
		return nil, fmt.Errorf("list failed publishes: %w", err)
	}
	return recs, nil
}
