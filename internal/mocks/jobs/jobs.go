// Package jobs contains hand-written test doubles for the bulk job engine
// ports. These are behavioral fakes rather than gomock stubs: the in-memory
// repository enforces the same status transition rules as Postgres, and the
// synthetic row source produces arbitrarily large row sets without storage.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// Ensure compile-time conformance to the core ports.
var (
	_ core.BulkJobRepository       = (*MemoryJobRepo)(nil)
	_ core.FailedPublishRepository = (*MemoryFailedPublishRepo)(nil)
	_ core.RowSourceOpener         = (*SyntheticRowSource)(nil)
	_ core.EventSinkFactory        = (*CaptureSinkFactory)(nil)
	_ stream.Sink                  = (*CaptureSink)(nil)
	_ stream.Flusher               = (*CaptureSink)(nil)
)

// MemoryJobRepo is an in-memory BulkJobRepository with the same transition
// semantics as the SQL implementation: conditional status writes, terminal
// statuses never downgraded, monotonic counters.
type MemoryJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.BulkJob

	// FetchStatusHook, when set, runs on every FetchStatus call before the
	// status is read. Tests use it to cancel a job at a specific poll.
	FetchStatusHook func(tenant, id string, poll int)

	polls int
}

// NewMemoryJobRepo constructs an empty repository.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[string]*model.BulkJob)}
}

func jobKey(tenant, id string) string {
	return tenant + "/" + id
}

// Create stores the job, assigning an id when absent.
func (r *MemoryJobRepo) Create(_ context.Context, job *model.BulkJob) (*model.BulkJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *job
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := r.jobs[jobKey(stored.Tenant, stored.ID)]; exists {
		return nil, fmt.Errorf("insert bulk job %s: id already taken", stored.ID)
	}
	if stored.Status == "" {
		stored.Status = model.JobStatusInProgress
	}
	now := time.Now().UTC()
	stored.SubmittedDate = now
	stored.UpdatedAt = now

	r.jobs[jobKey(stored.Tenant, stored.ID)] = &stored
	out := stored
	return &out, nil
}

// GetByID returns a copy of the stored job.
func (r *MemoryJobRepo) GetByID(_ context.Context, tenant, id string) (*model.BulkJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey(tenant, id)]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	out := *job
	return &out, nil
}

// List returns all jobs for the tenant, unordered.
func (r *MemoryJobRepo) List(
	_ context.Context,
	tenant string,
	opts *model.JobListOptions,
) ([]*model.BulkJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.BulkJob
	for _, job := range r.jobs {
		if job.Tenant != tenant {
			continue
		}
		if opts != nil && opts.Kind != "" && job.Kind != opts.Kind {
			continue
		}
		if opts != nil && opts.Status != "" && job.Status != opts.Status {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

// FetchStatus reads the current status, invoking FetchStatusHook first.
func (r *MemoryJobRepo) FetchStatus(_ context.Context, tenant, id string) (model.JobStatus, error) {
	r.mu.Lock()
	r.polls++
	poll := r.polls
	hook := r.FetchStatusHook
	r.mu.Unlock()

	if hook != nil {
		hook(tenant, id, poll)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobKey(tenant, id)]
	if !ok {
		return "", model.ErrJobNotFound
	}
	return job.Status, nil
}

// UpdateCounters applies a monotonic counter flush.
func (r *MemoryJobRepo) UpdateCounters(_ context.Context, p core.UpdateCountersParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey(p.Tenant, p.ID)]
	if !ok {
		return model.ErrJobNotFound
	}
	if p.Processed > job.Processed {
		job.Processed = p.Processed
	}
	if p.Published > job.Published {
		job.Published = p.Published
	}
	if p.Counters != nil {
		job.Counters = cloneCounters(p.Counters)
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionStatus performs the conditional status write and returns the
// resulting status.
func (r *MemoryJobRepo) TransitionStatus(
	_ context.Context,
	p core.TransitionStatusParams,
) (model.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey(p.Tenant, p.ID)]
	if !ok {
		return "", model.ErrJobNotFound
	}

	for _, from := range p.From {
		if job.Status != from {
			continue
		}
		job.Status = p.To
		if p.Processed > job.Processed {
			job.Processed = p.Processed
		}
		if p.Published > job.Published {
			job.Published = p.Published
		}
		if p.Counters != nil {
			job.Counters = cloneCounters(p.Counters)
		}
		if p.LastError != "" {
			msg := p.LastError
			job.LastError = &msg
		}
		job.UpdatedAt = time.Now().UTC()
		break
	}
	return job.Status, nil
}

// Cancel moves a non-terminal job to its cancelled variant.
func (r *MemoryJobRepo) Cancel(_ context.Context, tenant, id string) (model.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey(tenant, id)]
	if !ok {
		return "", model.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return job.Status, nil
	}

	if job.Kind == model.JobKindReindex {
		job.Status = model.JobStatusIDPublishingCancelled
	} else {
		job.Status = model.JobStatusCancelled
	}
	job.UpdatedAt = time.Now().UTC()
	return job.Status, nil
}

func cloneCounters(in map[string]model.CategoryCounter) map[string]model.CategoryCounter {
	out := make(map[string]model.CategoryCounter, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MemoryFailedPublishRepo is an in-memory dead-letter repository.
type MemoryFailedPublishRepo struct {
	mu      sync.Mutex
	records []*model.FailedPublish
}

// NewMemoryFailedPublishRepo constructs an empty repository.
func NewMemoryFailedPublishRepo() *MemoryFailedPublishRepo {
	return &MemoryFailedPublishRepo{}
}

// Create appends a dead-letter record.
func (r *MemoryFailedPublishRepo) Create(
	_ context.Context,
	req *model.CreateFailedPublishRequest,
) (*model.FailedPublish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &model.FailedPublish{
		ID:               uuid.NewString(),
		Tenant:           req.Tenant,
		TopicName:        req.TopicName,
		PartitionKey:     req.PartitionKey,
		Payload:          req.Payload,
		Error:            req.Error,
		IncidentDateTime: time.Now().UTC(),
	}
	r.records = append(r.records, rec)
	out := *rec
	return &out, nil
}

// GetByID returns a record by id.
func (r *MemoryFailedPublishRepo) GetByID(_ context.Context, tenant, id string) (*model.FailedPublish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.Tenant == tenant && rec.ID == id {
			out := *rec
			return &out, nil
		}
	}
	return nil, model.ErrFailedPublishNotFound
}

// List returns records for the tenant in insertion order.
func (r *MemoryFailedPublishRepo) List(
	_ context.Context,
	tenant string,
	opts *model.FailedPublishListOptions,
) ([]*model.FailedPublish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.FailedPublish
	for _, rec := range r.records {
		if rec.Tenant != tenant {
			continue
		}
		if opts != nil && opts.TopicName != "" && rec.TopicName != opts.TopicName {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// Len returns the number of stored records.
func (r *MemoryFailedPublishRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// SyntheticRowSource produces deterministic row sets without touching
// storage. Rows controls the stream length; DocumentFunc, when set, attaches
// a document to each row (record streams).
type SyntheticRowSource struct {
	Rows         int
	DocumentFunc func(i int) []byte

	mu     sync.Mutex
	opened int
}

// Opened reports how many streams have been opened.
func (s *SyntheticRowSource) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// OpenIDStream streams synthetic identifiers rec-00000000..rec-N.
func (s *SyntheticRowSource) OpenIDStream(
	ctx context.Context,
	_ string,
	_ model.RecordKind,
) (stream.RowStream, error) {
	return s.open(ctx, false), nil
}

// OpenRecordStream streams synthetic identifiers plus documents.
func (s *SyntheticRowSource) OpenRecordStream(
	ctx context.Context,
	_ string,
	_ *model.RecordListOptions,
) (stream.RowStream, error) {
	return s.open(ctx, true), nil
}

//nolint:ireturn // opener satisfies core.RowSourceOpener
func (s *SyntheticRowSource) open(ctx context.Context, withDocs bool) stream.RowStream {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()

	ps := stream.NewPushStream()
	go func() {
		for i := 0; i < s.Rows; i++ {
			if ctx.Err() != nil {
				ps.Abort(ctx.Err())
				return
			}
			row := stream.Row{ID: fmt.Sprintf("rec-%08d", i)}
			if withDocs && s.DocumentFunc != nil {
				row.Document = s.DocumentFunc(i)
			}
			if !ps.Push(row) {
				return
			}
		}
		ps.End()
	}()
	return ps
}

// CaptureSinkFactory hands out CaptureSinks and retains them for inspection.
type CaptureSinkFactory struct {
	// OfferErr, when set, is returned by every sink Offer call.
	OfferErr error
	// FullEvery
	// makes the sink report Full once per this many offered items,
	// exercising the pause/resume path. Zero disables it.
	FullEvery int

	mu    sync.Mutex
	sinks []*CaptureSink
}

// NewEventSink builds a sink that records items and confirms each one
// immediately.
//
//nolint:ireturn // factory satisfies core.EventSinkFactory
func (f *CaptureSinkFactory) NewEventSink(p core.EventSinkParams) (stream.Sink, error) {
	sink := &CaptureSink{
		Topic:     p.Topic,
		Tenant:    p.Tenant,
		onConfirm: p.OnConfirm,
		offerErr:  f.OfferErr,
		fullEvery: f.FullEvery,
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
	return sink, nil
}

// Sinks returns every sink the factory has built.
func (f *CaptureSinkFactory) Sinks() []*CaptureSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*CaptureSink, len(f.sinks))
	copy(out, f.sinks)
	return out
}

// Items returns all items across all sinks in offer order.
func (f *CaptureSinkFactory) Items() []stream.Item {
	var out []stream.Item
	for _, sink := range f.Sinks() {
		out = append(out, sink.Items()...)
	}
	return out
}

// CaptureSink records offered items and confirms each synchronously. Every
// accepted item triggers the job's confirm callback, so published counters in
// tests track offers exactly.
type CaptureSink struct {
	Topic  string
	Tenant string

	onConfirm func()
	offerErr  error
	fullEvery int

	mu      sync.Mutex
	items   []stream.Item
	closed  bool
	drainFn func()
}

// Offer records the item and confirms it.
func (s *CaptureSink) Offer(_ context.Context, item stream.Item) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stream.ErrSinkClosed
	}
	if s.offerErr != nil {
		err := s.offerErr
		s.mu.Unlock()
		return err
	}
	s.items = append(s.items, item)
	confirm := s.onConfirm
	s.mu.Unlock()

	if confirm != nil {
		confirm()
	}
	return nil
}

// Full reports true once per fullEvery offered items.
func (s *CaptureSink) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fullEvery <= 0 || len(s.items) == 0 {
		return false
	}
	return len(s.items)%s.fullEvery == 0
}

// OnDrain invokes fn immediately: the capture sink confirms synchronously, so
// capacity is always available by the time a drain callback is registered.
func (s *CaptureSink) OnDrain(fn func()) {
	fn()
}

// Flush is a no-op; nothing is in flight.
func (s *CaptureSink) Flush(context.Context) error {
	return nil
}

// Close marks the sink closed.
func (s *CaptureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Items returns a copy of the recorded items.
func (s *CaptureSink) Items() []stream.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.Item, len(s.items))
	copy(out, s.items)
	return out
}

// Closed reports whether Close has been called.
func (s *CaptureSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
