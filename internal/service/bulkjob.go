package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
)

// BulkJobServiceOptions groups dependencies for BulkJobService.
type BulkJobServiceOptions struct {
	Repo   core.BulkJobRepository // Required: bulk job repository
	Runner *JobRunner             // Required: job execution engine
	Logger *slog.Logger           // Optional: structured logger
}

// BulkJobService provides business logic for bulk job operations.
//
// This service manages:
// - Submitting jobs: parameter validation, persistence, runner launch
// - Reading job state and progress
// - Cooperative cancellation through the status row.
type BulkJobService struct {
	repo   core.BulkJobRepository
	runner *JobRunner
	logger *slog.Logger
}

// NewBulkJobService constructs a new BulkJobService.
func NewBulkJobService(opts BulkJobServiceOptions) (*BulkJobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("BulkJobRepository is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("JobRunner is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "bulk_job_service")
	}

	return &BulkJobService{
		repo:   opts.Repo,
		runner: opts.Runner,
		logger: logger,
	}, nil
}

// MustNewBulkJobService constructs a new BulkJobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewBulkJobService(opts BulkJobServiceOptions) *BulkJobService {
	svc, err := NewBulkJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create BulkJobService: %v", err))
	}
	return svc
}

// Submit validates the request, persists the job in progress, and launches it
// on the runner. The returned job reflects the persisted initial state.
func (s *BulkJobService) Submit(
	ctx context.Context,
	tenant string,
	req *model.SubmitJobRequest,
) (*model.BulkJob, error) {
	if req == nil {
		return nil, errors.New("submit job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateJobParameters(req.Kind, req.Parameters); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, &model.BulkJob{
		ID:         req.ID,
		Tenant:     tenant,
		Kind:       req.Kind,
		Status:     model.JobStatusInProgress,
		Parameters: req.Parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("create bulk job: %w", err)
	}

	if !s.runner.Launch(job) {
		// Registry refused: shutdown in flight or duplicate id. The reaper
		// will fail the orphaned row if no other process picks it up.
		if s.logger != nil {
			s.logger.Warn("bulk job not launched",
				"tenant", tenant, "job_id", job.ID, "kind", job.Kind)
		}
		return nil, fmt.Errorf("bulk job %s could not be launched", job.ID)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "bulk job submitted",
			"tenant", tenant, "job_id", job.ID, "kind", job.Kind)
	}
	return job, nil
}

// GetByID returns a bulk job by its id.
func (s *BulkJobService) GetByID(ctx context.Context, tenant, id string) (*model.BulkJob, error) {
	job, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get bulk job %s: %w", id, err)
	}
	return job, nil
}

// List returns bulk jobs for the tenant, newest first.
func (s *BulkJobService) List(
	ctx context.Context,
	tenant string,
	opts *model.JobListOptions,
) ([]*model.BulkJob, error) {
	jobs, err := s.repo.List(ctx, tenant, opts)
	if err != nil {
		return nil, fmt.Errorf("list bulk jobs: %w", err)
	}
	return jobs, nil
}

// Cancel requests cancellation of a running job and returns the status the
// job holds afterwards. Cancelling an already-terminal job is a no-op that
// returns the existing terminal status; the runner observes the new status at
// its next checkpoint and stops.
func (s *BulkJobService) Cancel(ctx context.Context, tenant, id string) (model.JobStatus, error) {
	status, err := s.repo.Cancel(ctx, tenant, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return "", err
		}
		return "", fmt.Errorf("cancel bulk job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "bulk job cancel requested",
			"tenant", tenant, "job_id", id, "status", status)
	}
	return status, nil
}

// ValidateJobParameters checks kind-specific parameters without running the
// job, so a bad submission is rejected before any row is persisted.
func ValidateJobParameters(kind model.JobKind, raw []byte) error {
	switch kind {
	case model.JobKindReindex:
		var params model.ReindexParameters
		if err := decodeParameters(raw, &params); err != nil {
			return err
		}
		if !params.RecordKind.Valid() {
			return fmt.Errorf("invalid record kind: %q", params.RecordKind)
		}
		return nil

	case model.JobKindIteration:
		var params model.IterationParameters
		if err := decodeParameters(raw, &params); err != nil {
			return err
		}
		if strings.TrimSpace(params.TopicName) == "" {
			return errors.New("topic name is required")
		}
		if strings.TrimSpace(params.EventType) == "" {
			return errors.New("event type is required")
		}
		if f := strings.TrimSpace(params.Filter); f != "" {
			if _, err := jmespath.Compile(f); err != nil {
				return fmt.Errorf("invalid filter expression: %w", err)
			}
		}
		return nil

	case model.JobKindMigration:
		var params model.MigrationParameters
		if err := decodeParameters(raw, &params); err != nil {
			return err
		}
		return ValidateMigrationNames(params.Migrations)

	default:
		return fmt.Errorf("unsupported job kind: %q", kind)
	}
}
