// Package core defines the contracts between the service layer and the data,
// bus, and streaming layers (ports in hexagonal architecture). Service
// implementations depend on these interfaces, not on concrete types.
package core

import (
	"context"
	"time"

	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// UpdateCountersParams groups parameters for BulkJobRepository.UpdateCounters
// to keep param count ≤3.
type UpdateCountersParams struct {
	Tenant    string
	ID        string
	Processed int64
	Published int64
	// Counters carries the per-category breakdown for jobs that span multiple
	// sub-operations (one entry per migration name); nil leaves it untouched.
	Counters map[string]model.CategoryCounter
}

// TransitionStatusParams groups parameters for
// BulkJobRepository.TransitionStatus.
type TransitionStatusParams struct {
	Tenant string
	ID     string
	// From is the set of statuses the transition may move away from. A job in
	// any other status keeps it; the resulting status is returned either way,
	// so a terminal status is never downgraded.
	From []model.JobStatus
	To   model.JobStatus
	// Final counter values flushed in the same statement as the status write.
	Processed int64
	Published int64
	Counters  map[string]model.CategoryCounter
	LastError string
}

// BulkJobRepository defines durable CRUD for bulk job metadata. Status writes
// serialize read-modify-write per job id at the database.
type BulkJobRepository interface {
	Create(ctx context.Context, job *model.BulkJob) (*model.BulkJob, error)
	GetByID(ctx context.Context, tenant, id string) (*model.BulkJob, error)
	List(ctx context.Context, tenant string, opts *model.JobListOptions) ([]*model.BulkJob, error)
	// FetchStatus is the cheap status poll used at cancellation check points.
	FetchStatus(ctx context.Context, tenant, id string) (model.JobStatus, error)
	UpdateCounters(ctx context.Context, p UpdateCountersParams) error
	TransitionStatus(ctx context.Context, p TransitionStatusParams) (model.JobStatus, error)
	// Cancel moves the job to its cancelled variant iff the current status is
	// non-terminal, and returns the resulting status either way. Cancelling a
	// job that already reached a terminal status is a silent no-op.
	Cancel(ctx context.Context, tenant, id string) (model.JobStatus, error)
}

// FailedPublishRepository defines the dead-letter surface: create and read
// only, no update/delete contract.
type FailedPublishRepository interface {
	Create(ctx context.Context, req *model.CreateFailedPublishRequest) (*model.FailedPublish, error)
	GetByID(ctx context.Context, tenant, id string) (*model.FailedPublish, error)
	List(ctx context.Context, tenant string, opts *model.FailedPublishListOptions) ([]*model.FailedPublish, error)
}

// RecordRepository defines CRUD over stored records.
type RecordRepository interface {
	Create(ctx context.Context, tenant string, req *model.CreateRecordRequest) (*model.Record, error)
	GetByID(ctx context.Context, tenant, id string) (*model.Record, error)
	Update(ctx context.Context, tenant string, rec *model.Record) (*model.Record, error)
	Delete(ctx context.Context, tenant, id string) error
	List(ctx context.Context, tenant string, opts *model.RecordListOptions) ([]*model.Record, error)
}

// RowSourceOpener opens storage cursors as row streams. Each returned stream
// is exclusively owned by the caller and must be closed by it.
type RowSourceOpener interface {
	// OpenIDStream streams only record identifiers, in storage order.
	OpenIDStream(ctx context.Context, tenant string, kind model.RecordKind) (stream.RowStream, error)
	// OpenRecordStream streams identifiers plus document snapshots.
	OpenRecordStream(ctx context.Context, tenant string, opts *model.RecordListOptions) (stream.RowStream, error)
}

// DeleteOldJobsParams groups parameters for ReaperRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	Statuses  []model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines cross-tenant cleanup operations used by the reaper
// service. All operations are batched to bound lock time on large tables.
type ReaperRepository interface {
	// FailStaleJobs fails running jobs whose last counter flush is older than
	// maxAge. Covers jobs orphaned by a crashed process.
	FailStaleJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteOldJobs(ctx context.Context, p DeleteOldJobsParams) (int64, error)
	DeleteOldFailedPublishes(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// EventSinkParams configure one event sink instance.
type EventSinkParams struct {
	Tenant string
	Topic  string
	// OnConfirm is invoked once per item finally accepted by the transport:
	// either published, or dead-lettered after retries were exhausted.
	OnConfirm func()
}

// EventSinkFactory builds per-job event sinks over the message transport.
type EventSinkFactory interface {
	NewEventSink(p EventSinkParams) (stream.Sink, error)
}
