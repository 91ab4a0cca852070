// Package httpx provides HTTP handlers and utilities for the marcbase record storage API.
package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/service"
)

// RecordHandlers provides HTTP handlers for stored record operations.
type RecordHandlers struct {
	Svc *service.RecordService
}

// CreateRecord handles HTTP requests to create a new record.
func (h *RecordHandlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRecordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	rec, err := h.Svc.Create(r.Context(), TenantFromContext(r.Context()), &req)
	if err != nil {
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "record_exists", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "create_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusCreated, rec)
}

// GetRecord handles HTTP requests to fetch one record.
func (h *RecordHandlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("record id is required")},
		)
		return
	}

	rec, err := h.Svc.GetByID(r.Context(), TenantFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// UpdateRecord handles HTTP requests to replace a record's document.
func (h *RecordHandlers) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("record id is required")},
		)
		return
	}

	var rec model.Record
	if !DecodeJSON(w, r, &rec) {
		return
	}
	rec.ID = id

	updated, err := h.Svc.Update(r.Context(), TenantFromContext(r.Context()), &rec)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "update_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// DeleteRecord handles HTTP requests to delete a record.
func (h *RecordHandlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("record id is required")},
		)
		return
	}

	if err := h.Svc.Delete(r.Context(), TenantFromContext(r.Context()), id); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "delete_failed", Err: err})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

const (
	defaultRecordPageSize = 100
	maxRecordPageSize     = 1000
)

// ListRecords handles HTTP requests to list records with pagination.
func (h *RecordHandlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	opts, ok := recordListOptions(w, r)
	if !ok {
		return
	}

	recs, err := h.Svc.List(r.Context(), TenantFromContext(r.Context()), opts)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	if recs == nil {
		recs = []*model.Record{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"records":      recs,
		"totalRecords": len(recs),
	})
}

// recordListOptions parses the shared filter params of list and stream
// endpoints. On a bad param it writes the error response and returns false.
func recordListOptions(w http.ResponseWriter, r *http.Request) (*model.RecordListOptions, bool) {
	opts := &model.RecordListOptions{}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultRecordPageSize, maxRecordPageSize)

	if kind := r.URL.Query().Get("kind"); kind != "" {
		if err := opts.Kind.UnmarshalText([]byte(kind)); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_kind", Err: err})
			return nil, false
		}
	}

	if after := r.URL.Query().Get("updatedAfter"); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_updated_after", Err: err})
			return nil, false
		}
		opts.UpdatedAfter = &t
	}

	return opts, true
}
