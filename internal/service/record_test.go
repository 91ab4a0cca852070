package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
	jobsmocks "github.com/marcbase/marcbase/internal/mocks/jobs"
)

func newRecordService(t *testing.T) (*RecordService, *jobsmocks.MemoryRecordRepo) {
	t.Helper()

	repo := jobsmocks.NewMemoryRecordRepo()
	svc := MustNewRecordService(RecordServiceOptions{Repo: repo, Rows: repo})
	return svc, repo
}

func TestRecordCreateAndGet(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, testTenant, &model.CreateRecordRequest{
		Kind:     model.RecordKindInstance,
		Document: json.RawMessage(`{"title": "Moby Dick"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := svc.GetByID(ctx, testTenant, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "Moby Dick"}`, string(got.Document))
}

func TestRecordCreateValidation(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *model.CreateRecordRequest
	}{
		{"nil request", nil},
		{"invalid kind", &model.CreateRecordRequest{Kind: "loan", Document: json.RawMessage(`{}`)}},
		{"missing document", &model.CreateRecordRequest{Kind: model.RecordKindItem}},
		{
			"malformed document",
			&model.CreateRecordRequest{Kind: model.RecordKindItem, Document: json.RawMessage(`{"a"`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, testTenant, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestRecordCreateDuplicateID(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	req := &model.CreateRecordRequest{
		ID:       "22222222-2222-2222-2222-222222222222",
		Kind:     model.RecordKindHolding,
		Document: json.RawMessage(`{}`),
	}
	_, err := svc.Create(ctx, testTenant, req)
	require.NoError(t, err)

	_, err = svc.Create(ctx, testTenant, req)
	assert.ErrorIs(t, err, data.ErrRecordAlreadyExists)
}

func TestRecordUpdateAndDelete(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, testTenant, &model.CreateRecordRequest{
		Kind:     model.RecordKindAuthority,
		Document: json.RawMessage(`{"v": 1}`),
	})
	require.NoError(t, err)

	rec.Document = json.RawMessage(`{"v": 2}`)
	updated, err := svc.Update(ctx, testTenant, rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v": 2}`, string(updated.Document))

	require.NoError(t, svc.Delete(ctx, testTenant, rec.ID))
	_, err = svc.GetByID(ctx, testTenant, rec.ID)
	assert.ErrorIs(t, err, data.ErrRecordNotFound)
}

func TestRecordListFiltersByKind(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	for _, kind := range []model.RecordKind{
		model.RecordKindInstance, model.RecordKindInstance, model.RecordKindItem,
	} {
		_, err := svc.Create(ctx, testTenant, &model.CreateRecordRequest{
			Kind:     kind,
			Document: json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	recs, err := svc.List(ctx, testTenant, &model.RecordListOptions{Kind: model.RecordKindInstance})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

// chunkRecorder is a minimal in-memory connection writer for stream tests.
type chunkRecorder struct {
	buf      bytes.Buffer
	writeErr error
}

func (w *chunkRecorder) WriteChunk(p []byte) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	_, _ = w.buf.Write(p)
	return nil
}

func (w *chunkRecorder) Full() bool        { return false }
func (w *chunkRecorder) OnDrain(fn func()) { fn() }

func TestRecordStreamWritesEveryDocument(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Create(ctx, testTenant, &model.CreateRecordRequest{
			Kind:     model.RecordKindInstance,
			Document: json.RawMessage(`{"title": "T"}`),
		})
		require.NoError(t, err)
	}

	w := &chunkRecorder{}
	written, err := svc.Stream(ctx, testTenant, nil, w)
	require.NoError(t, err)
	assert.Equal(t, int64(4), written)

	lines := bytes.Split(bytes.TrimSuffix(w.buf.Bytes(), []byte("\n")), []byte("\n"))
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.True(t, json.Valid(line))
	}
}

func TestRecordStreamSurfacesWriteErrors(t *testing.T) {
	svc, _ := newRecordService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testTenant, &model.CreateRecordRequest{
		Kind:     model.RecordKindInstance,
		Document: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	w := &chunkRecorder{writeErr: errors.New("client went away")}
	written, err := svc.Stream(ctx, testTenant, nil, w)
	require.Error(t, err)
	assert.Zero(t, written)
}

func TestFailedPublishServicePassthrough(t *testing.T) {
	repo := jobsmocks.NewMemoryFailedPublishRepo()
	svc := MustNewFailedPublishService(FailedPublishServiceOptions{Repo: repo})
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.CreateFailedPublishRequest{
		Tenant:    testTenant,
		TopicName: "marcbase.diku.reindex",
		Payload:   `{}`,
		Error:     "broker unavailable",
	})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, testTenant, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "broker unavailable", got.Error)

	_, err = svc.GetByID(ctx, testTenant, "missing")
	assert.ErrorIs(t, err, model.ErrFailedPublishNotFound)

	recs, err := svc.List(ctx, testTenant, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
