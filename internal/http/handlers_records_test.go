package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/internal/domain/model"
)

func seedRecord(t *testing.T, f *routerFixture, kind model.RecordKind, doc string) *model.Record {
	t.Helper()
	rec, err := f.records.Create(context.Background(), testTenant, &model.CreateRecordRequest{
		Kind:     kind,
		Document: json.RawMessage(doc),
	})
	require.NoError(t, err)
	return rec
}

func TestCreateRecordReturns201(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/records", model.CreateRecordRequest{
		Kind:     model.RecordKindInstance,
		Document: json.RawMessage(`{"title": "Moby Dick"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Record
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testTenant, created.Tenant)
	assert.Equal(t, model.RecordKindInstance, created.Kind)
}

func TestCreateRecordValidationErrors(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name    string
		body    any
		errCode string
	}{
		{"unknown field", map[string]any{"kins": "instance"}, "invalid_json"},
		{"invalid kind", model.CreateRecordRequest{Kind: "loan", Document: json.RawMessage(`{}`)}, "create_failed"},
		{"missing document", model.CreateRecordRequest{Kind: model.RecordKindItem}, "create_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/records", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.errCode, body["error"])
		})
	}
}

func TestCreateRecordDuplicateIDConflicts(t *testing.T) {
	f := newRouterFixture(t)

	req := model.CreateRecordRequest{
		ID:       "33333333-3333-3333-3333-333333333333",
		Kind:     model.RecordKindHolding,
		Document: json.RawMessage(`{}`),
	}
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/records", req).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/records", req).Code)
}

func TestGetRecordByID(t *testing.T) {
	f := newRouterFixture(t)
	seeded := seedRecord(t, f, model.RecordKindInstance, `{"title": "T"}`)

	rec := f.do(t, http.MethodGet, "/api/records/"+seeded.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Record
	decodeBody(t, rec, &got)
	assert.Equal(t, seeded.ID, got.ID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/records/missing", nil).Code)
}

func TestGetRecordIsTenantScoped(t *testing.T) {
	f := newRouterFixture(t)
	seeded := seedRecord(t, f, model.RecordKindInstance, `{}`)

	rec := f.doAs(t, "other", http.MethodGet, "/api/records/"+seeded.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRecordReplacesDocument(t *testing.T) {
	f := newRouterFixture(t)
	seeded := seedRecord(t, f, model.RecordKindItem, `{"v": 1}`)

	rec := f.do(t, http.MethodPut, "/api/records/"+seeded.ID, model.Record{
		Kind:     model.RecordKindItem,
		Document: json.RawMessage(`{"v": 2}`),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.Record
	decodeBody(t, rec, &updated)
	assert.JSONEq(t, `{"v": 2}`, string(updated.Document))

	notFound := f.do(t, http.MethodPut, "/api/records/missing", model.Record{
		Kind:     model.RecordKindItem,
		Document: json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusNotFound, notFound.Code)
}

func TestDeleteRecord(t *testing.T) {
	f := newRouterFixture(t)
	seeded := seedRecord(t, f, model.RecordKindAuthority, `{}`)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/records/"+seeded.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/records/"+seeded.ID, nil).Code)
}

func TestListRecordsFiltersAndCounts(t *testing.T) {
	f := newRouterFixture(t)
	seedRecord(t, f, model.RecordKindInstance, `{}`)
	seedRecord(t, f, model.RecordKindInstance, `{}`)
	seedRecord(t, f, model.RecordKindItem, `{}`)

	rec := f.do(t, http.MethodGet, "/api/records?kind=instance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records      []*model.Record `json:"records"`
		TotalRecords int             `json:"totalRecords"`
	}
	decodeBody(t, rec, &body)
	assert.Len(t, body.Records, 2)
	assert.Equal(t, 2, body.TotalRecords)
}

func TestListRecordsRejectsBadParams(t *testing.T) {
	f := newRouterFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/records?kind=loan", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodGet, "/api/records?updatedAfter=yesterday", nil).Code)
}

func TestListRecordsEmptyIsAnEmptyArray(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records": [], "totalRecords": 0}`, rec.Body.String())
}
