package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marcbase/marcbase/config"
	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	obserrors "github.com/marcbase/marcbase/internal/observability/errors"
	"github.com/marcbase/marcbase/internal/observability/metrics"
	"github.com/marcbase/marcbase/internal/observability/notify"
	"github.com/marcbase/marcbase/internal/observability/statsd"
	"github.com/marcbase/marcbase/internal/stream"
)

// errJobStopped signals that a cancellation was observed at a checkpoint.
// The status row already carries the cancelled variant; the runner just
// stops pushing rows.
var errJobStopped = errors.New("job stopped at checkpoint")

// recordEvent is the wire payload published for each row of a bulk job.
type recordEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Tenant     string `json:"tenant"`
	JobID      string `json:"jobId"`
	RecordKind string `json:"recordKind,omitempty"`
}

// stage is one source-to-sink pass of a job. Migration jobs run one stage per
// migration name; iteration and reindex jobs run a single stage. Streams and
// sinks are opened lazily so a multi-stage job holds one cursor at a time.
type stage struct {
	// category keys the per-category counter entry; empty for
	// single-stage kinds.
	category string
	open     func(ctx context.Context, onConfirm func()) (stageIO, error)
}

type stageIO struct {
	source    stream.RowStream
	sink      stream.Sink
	transform stream.Transform
}

// JobRunnerOptions groups dependencies for JobRunner.
type JobRunnerOptions struct {
	Jobs     core.BulkJobRepository // Required: bulk job repository
	Rows     core.RowSourceOpener   // Required: storage row source
	Sinks    core.EventSinkFactory  // Required: event sink factory
	Registry *Registry              // Required: running job registry
	Config   config.JobsConfig      // Required: job engine configuration
	Logger   *slog.Logger           // Optional: structured logger
	Metrics  statsd.Sink            // Optional: metrics sink (StatsD-compatible)
	Notifier notify.Sink            // Optional: failure notification sink
}

// JobRunner executes bulk jobs: it streams rows out of storage, transforms
// them into events, and pushes them through a backpressure-aware sink while
// flushing progress counters and polling for cancellation.
type JobRunner struct {
	jobs     core.BulkJobRepository
	rows     core.RowSourceOpener
	sinks    core.EventSinkFactory
	registry *Registry
	config   config.JobsConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	notifier notify.Sink
}

// NewJobRunner constructs a new JobRunner.
func NewJobRunner(opts JobRunnerOptions) (*JobRunner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("BulkJobRepository is required")
	}
	if opts.Rows == nil {
		return nil, errors.New("RowSourceOpener is required")
	}
	if opts.Sinks == nil {
		return nil, errors.New("EventSinkFactory is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("Registry is required")
	}
	if opts.Config.ProgressInterval < 1 {
		return nil, errors.New("ProgressInterval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_runner")
	}

	return &JobRunner{
		jobs:     opts.Jobs,
		rows:     opts.Rows,
		sinks:    opts.Sinks,
		registry: opts.Registry,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
	}, nil
}

// MustNewJobRunner constructs a new JobRunner and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobRunner(opts JobRunnerOptions) *JobRunner {
	r, err := NewJobRunner(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobRunner: %v", err))
	}
	return r
}

// Launch starts executing the job on a new goroutine registered with the
// registry. Returns false when the job is already running in this process or
// the registry is shut down.
func (r *JobRunner) Launch(job *model.BulkJob) bool {
	ctx, done, ok := r.registry.Begin(job.Tenant, job.ID)
	if !ok {
		return false
	}

	go func() {
		defer done()
		if err := r.Run(ctx, job); err != nil && r.logger != nil {
			r.logger.Error("bulk job run failed",
				"tenant", job.Tenant,
				"job_id", job.ID,
				"kind", job.Kind,
				"error", err,
			)
		}
	}()
	return true
}

// Run executes the job synchronously until it reaches a terminal state, the
// context is cancelled, or a cancellation is observed at a checkpoint.
func (r *JobRunner) Run(ctx context.Context, job *model.BulkJob) error {
	start := time.Now()

	stages, err := r.stagesFor(job)
	if err != nil {
		r.failJob(ctx, job, jobTotals{}, err)
		r.emitLifecycle(job, "validate", metrics.ResultError, jobTotals{}, time.Since(start), err)
		return err
	}

	totals := jobTotals{}
	if len(stages) > 1 || stages[0].category != "" {
		totals.counters = make(map[string]model.CategoryCounter, len(stages))
	}

	for _, st := range stages {
		stageErr := r.runStage(ctx, job, st, &totals)
		switch {
		case stageErr == nil:
			continue
		case errors.Is(stageErr, errJobStopped):
			r.flushCounters(ctx, job, totals)
			r.emitLifecycle(job, "cancel", metrics.ResultCancelled, totals, time.Since(start), nil)
			return nil
		case errors.Is(stageErr, context.Canceled) || errors.Is(stageErr, context.DeadlineExceeded):
			// Process shutdown mid-run. Flush what we have and leave the job
			// in_progress for the reaper.
			r.flushCounters(context.WithoutCancel(ctx), job, totals)
			return stageErr
		default:
			r.failJob(ctx, job, totals, stageErr)
			r.emitLifecycle(job, "fail", metrics.ResultError, totals, time.Since(start), stageErr)
			return stageErr
		}
	}

	finalStatus, err := r.completeJob(ctx, job, totals)
	if err != nil {
		return err
	}

	r.emitLifecycle(job, "complete", metrics.ResultSuccess, totals, time.Since(start), nil)
	if r.logger != nil {
		r.logger.Info("bulk job finished",
			"tenant", job.Tenant,
			"job_id", job.ID,
			"kind", job.Kind,
			"status", finalStatus,
			"processed", totals.processed,
			"published", totals.published,
			"elapsed", time.Since(start),
		)
	}
	return nil
}

// jobTotals accumulates counters across stages. published lags processed by
// the sink's in-flight window until the final flush.
type jobTotals struct {
	processed int64
	published int64
	counters  map[string]model.CategoryCounter
}

func (r *JobRunner) runStage(
	ctx context.Context,
	job *model.BulkJob,
	st stage,
	totals *jobTotals,
) error {
	var published atomic.Int64
	io, err := st.open(ctx, func() { published.Add(1) })
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := io.sink.Close(context.WithoutCancel(ctx)); closeErr != nil && r.logger != nil {
			r.logger.Warn("event sink close failed",
				"tenant", job.Tenant, "job_id", job.ID, "error", closeErr)
		}
	}()

	baseProcessed := totals.processed
	basePublished := totals.published
	interval := r.config.ProgressInterval

	snapshot := func(stageProcessed int64) jobTotals {
		snap := jobTotals{
			processed: baseProcessed + stageProcessed,
			published: basePublished + published.Load(),
			counters:  totals.counters,
		}
		if st.category != "" {
			snap.counters[st.category] = model.CategoryCounter{
				Processed: stageProcessed,
				Published: published.Load(),
			}
		}
		return snap
	}

	processed, pumpErr := stream.Pump(ctx, io.source, io.sink, stream.PumpOptions{
		Transform: io.transform,
		OnDelivered: func(n int64) error {
			if n%interval != 0 {
				return nil
			}
			return r.checkpoint(ctx, job, snapshot(n))
		},
	})

	if pumpErr != nil {
		*totals = snapshot(processed)
		return pumpErr
	}

	// Reindex exposes the hand-over point: every id has been offered to the
	// sink, downstream is still draining.
	if job.Kind == model.JobKindReindex {
		if _, err := r.transition(ctx, job, snapshot(processed), transitionspec{
			from: []model.JobStatus{model.JobStatusInProgress},
			to:   model.JobStatusIDsPublished,
		}); err != nil {
			return err
		}
	}

	if f, ok := io.sink.(stream.Flusher); ok {
		if flushErr := f.Flush(ctx); flushErr != nil {
			*totals = snapshot(processed)
			return flushErr
		}
	}

	*totals = snapshot(processed)
	return nil
}

// checkpoint flushes progress and polls the status row. A terminal status
// observed here means another actor cancelled the job; the runner stops
// without writing status.
func (r *JobRunner) checkpoint(ctx context.Context, job *model.BulkJob, totals jobTotals) error {
	if err := r.jobs.UpdateCounters(ctx, core.UpdateCountersParams{
		Tenant:    job.Tenant,
		ID:        job.ID,
		Processed: totals.processed,
		Published: totals.published,
		Counters:  totals.counters,
	}); err != nil {
		return fmt.Errorf("flush progress: %w", err)
	}

	status, err := r.jobs.FetchStatus(ctx, job.Tenant, job.ID)
	if err != nil {
		return fmt.Errorf("poll job status: %w", err)
	}
	if status.Terminal() {
		if r.logger != nil {
			r.logger.Info("bulk job cancellation observed",
				"tenant", job.Tenant,
				"job_id", job.ID,
				"status", status,
				"processed", totals.processed,
			)
		}
		return errJobStopped
	}
	return nil
}

type transitionspec struct {
	from      []model.JobStatus
	to        model.JobStatus
	lastError string
}

func (r *JobRunner) transition(
	ctx context.Context,
	job *model.BulkJob,
	totals jobTotals,
	spec transitionspec,
) (model.JobStatus, error) {
	status, err := r.jobs.TransitionStatus(ctx, core.TransitionStatusParams{
		Tenant:    job.Tenant,
		ID:        job.ID,
		From:      spec.from,
		To:        spec.to,
		Processed: totals.processed,
		Published: totals.published,
		Counters:  totals.counters,
		LastError: spec.lastError,
	})
	if err != nil {
		return "", fmt.Errorf("transition job to %s: %w", spec.to, err)
	}
	return status, nil
}

func (r *JobRunner) completeJob(
	ctx context.Context,
	job *model.BulkJob,
	totals jobTotals,
) (model.JobStatus, error) {
	from := []model.JobStatus{model.JobStatusInProgress}
	if job.Kind == model.JobKindReindex {
		from = []model.JobStatus{model.JobStatusIDsPublished}
	}

	status, err := r.transition(ctx, job, totals, transitionspec{
		from: from,
		to:   model.JobStatusCompleted,
	})
	if err != nil {
		return "", err
	}
	if status != model.JobStatusCompleted && r.logger != nil {
		// Lost the race to a cancel; the terminal status stands.
		r.logger.Info("bulk job finished after external transition",
			"tenant", job.Tenant, "job_id", job.ID, "status", status)
	}
	return status, nil
}

func (r *JobRunner) failJob(ctx context.Context, job *model.BulkJob, totals jobTotals, cause error) {
	to := model.JobStatusFailed
	if job.Kind == model.JobKindReindex {
		to = model.JobStatusIDPublishingFailed
	}

	ctx = context.WithoutCancel(ctx)
	if _, err := r.transition(ctx, job, totals, transitionspec{
		from:      []model.JobStatus{model.JobStatusInProgress, model.JobStatusIDsPublished},
		to:        to,
		lastError: cause.Error(),
	}); err != nil && r.logger != nil {
		r.logger.Error("failed to record job failure",
			"tenant", job.Tenant, "job_id", job.ID, "cause", cause, "error", err)
	}

	r.notifyFailure(ctx, job, cause)
}

func (r *JobRunner) notifyFailure(ctx context.Context, job *model.BulkJob, cause error) {
	if r.notifier == nil {
		return
	}

	payload := notify.JobFailurePayload{
		JobID:      job.ID,
		JobKind:    string(job.Kind),
		Tenant:     job.Tenant,
		Error:      cause.Error(),
		ErrorClass: obserrors.Classify(cause),
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.notifier.SendJobFailure(ctx, payload); err != nil && r.logger != nil {
		r.logger.Warn("job failure notification failed",
			"tenant", job.Tenant, "job_id", job.ID, "error", err)
	}
}

func (r *JobRunner) flushCounters(ctx context.Context, job *model.BulkJob, totals jobTotals) {
	if err := r.jobs.UpdateCounters(ctx, core.UpdateCountersParams{
		Tenant:    job.Tenant,
		ID:        job.ID,
		Processed: totals.processed,
		Published: totals.published,
		Counters:  totals.counters,
	}); err != nil && r.logger != nil {
		r.logger.Warn("final counter flush failed",
			"tenant", job.Tenant, "job_id", job.ID, "error", err)
	}
}

func (r *JobRunner) emitLifecycle(
	job *model.BulkJob,
	transition, result string,
	totals jobTotals,
	elapsed time.Duration,
	err error,
) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Tenant:     job.Tenant,
		JobKind:    string(job.Kind),
		Transition: transition,
		Result:     result,
		Processed:  totals.processed,
		Duration:   elapsed,
		Err:        err,
	})
}

// stagesFor validates the job's parameters and builds its execution stages.
func (r *JobRunner) stagesFor(job *model.BulkJob) ([]stage, error) {
	switch job.Kind {
	case model.JobKindReindex:
		return r.reindexStages(job)
	case model.JobKindIteration:
		return r.iterationStages(job)
	case model.JobKindMigration:
		return r.migrationStages(job)
	default:
		return nil, fmt.Errorf("unsupported job kind: %q", job.Kind)
	}
}

func decodeParameters(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("job parameters are required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid job parameters: %w", err)
	}
	return nil
}
