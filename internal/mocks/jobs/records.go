package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

var (
	_ core.RecordRepository = (*MemoryRecordRepo)(nil)
	_ core.RowSourceOpener  = (*MemoryRecordRepo)(nil)
)

// MemoryRecordRepo is an in-memory record store that serves both the CRUD
// repository port and the row source port, so end-to-end tests can seed
// records and stream them back without Postgres. Streams snapshot the store
// at open time; writes during a stream do not affect it.
type MemoryRecordRepo struct {
	mu      sync.Mutex
	records map[string]*model.Record
	// order preserves insertion order, the memory stand-in for storage order.
	order []string
}

// NewMemoryRecordRepo constructs an empty record store.
func NewMemoryRecordRepo() *MemoryRecordRepo {
	return &MemoryRecordRepo{records: make(map[string]*model.Record)}
}

// Create stores a new record, assigning an id when absent.
func (r *MemoryRecordRepo) Create(
	_ context.Context,
	tenant string,
	req *model.CreateRecordRequest,
) (*model.Record, error) {
	if tenant == "" {
		return nil, data.ErrTenantRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	key := tenant + "/" + id
	if _, exists := r.records[key]; exists {
		return nil, data.ErrRecordAlreadyExists
	}

	now := time.Now().UTC()
	rec := &model.Record{
		ID:        id,
		Tenant:    tenant,
		Kind:      req.Kind,
		Document:  req.Document,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.records[key] = rec
	r.order = append(r.order, key)

	out := *rec
	return &out, nil
}

// GetByID returns a copy of the stored record.
func (r *MemoryRecordRepo) GetByID(_ context.Context, tenant, id string) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[tenant+"/"+id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	out := *rec
	return &out, nil
}

// Update replaces the record's document.
func (r *MemoryRecordRepo) Update(
	_ context.Context,
	tenant string,
	rec *model.Record,
) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[tenant+"/"+rec.ID]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	stored.Document = rec.Document
	stored.UpdatedAt = time.Now().UTC()
	out := *stored
	return &out, nil
}

// Delete removes the record.
func (r *MemoryRecordRepo) Delete(_ context.Context, tenant, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tenant + "/" + id
	if _, ok := r.records[key]; !ok {
		return data.ErrRecordNotFound
	}
	delete(r.records, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns records in insertion order with filtering and pagination.
func (r *MemoryRecordRepo) List(
	_ context.Context,
	tenant string,
	opts *model.RecordListOptions,
) ([]*model.Record, error) {
	matched := r.snapshot(tenant, opts)

	offset, limit := 0, len(matched)
	if opts != nil {
		if opts.Offset > 0 {
			offset = opts.Offset
		}
		if opts.Limit > 0 {
			limit = opts.Limit
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*model.Record, 0, end-offset)
	for _, rec := range matched[offset:end] {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// OpenIDStream streams the ids of every record of the kind, in insertion order.
func (r *MemoryRecordRepo) OpenIDStream(
	ctx context.Context,
	tenant string,
	kind model.RecordKind,
) (stream.RowStream, error) {
	matched := r.snapshot(tenant, &model.RecordListOptions{Kind: kind})
	return r.feed(ctx, matched, false), nil
}

// OpenRecordStream streams ids plus document snapshots.
func (r *MemoryRecordRepo) OpenRecordStream(
	ctx context.Context,
	tenant string,
	opts *model.RecordListOptions,
) (stream.RowStream, error) {
	matched := r.snapshot(tenant, opts)
	return r.feed(ctx, matched, true), nil
}

// snapshot copies the matching records under the lock. Filters only; the
// pagination fields of opts are ignored, matching the unbounded storage
// cursor the streams stand in for.
func (r *MemoryRecordRepo) snapshot(tenant string, opts *model.RecordListOptions) []*model.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*model.Record
	for _, key := range r.order {
		rec := r.records[key]
		if rec.Tenant != tenant {
			continue
		}
		if opts != nil && opts.Kind != "" && rec.Kind != opts.Kind {
			continue
		}
		if opts != nil && opts.UpdatedAfter != nil && !rec.UpdatedAt.After(*opts.UpdatedAfter) {
			continue
		}
		matched = append(matched, rec)
	}
	return matched
}

//nolint:ireturn // store satisfies core.RowSourceOpener
func (r *MemoryRecordRepo) feed(ctx context.Context, recs []*model.Record, withDocs bool) stream.RowStream {
	ps := stream.NewPushStream()
	go func() {
		for _, rec := range recs {
			if ctx.Err() != nil {
				ps.Abort(ctx.Err())
				return
			}
			row := stream.Row{ID: rec.ID}
			if withDocs {
				row.Document = rec.Document
			}
			if !ps.Push(row) {
				return
			}
		}
		ps.End()
	}()
	return ps
}
