package httpx

import (
	"errors"
	"net/http"

	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/service"
)

// FailedPublishHandlers provides HTTP handlers for dead-letter record reads.
type FailedPublishHandlers struct {
	Svc *service.FailedPublishService
}

// GetFailedPublish handles HTTP requests to fetch one dead-letter record.
func (h *FailedPublishHandlers) GetFailedPublish(w http.ResponseWriter, r *http.Request) {
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
		if errors.Is(err, model.ErrFailedPublishNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

const (
	defaultFailedPublishPageSize = 50
	maxFailedPublishPageSize     = 500
)

// ListFailedPublishes handles HTTP requests to list dead-letter records.
func (h *FailedPublishHandlers) ListFailedPublishes(w http.ResponseWriter, r *http.Request) {
	opts := &model.FailedPublishListOptions{
		TopicName: r.URL.Query().Get("topic"),
	}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultFailedPublishPageSize, maxFailedPublishPageSize)

	recs, err := h.Svc.List(r.Context(), TenantFromContext(r.Context()), opts)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	if recs == nil {
		recs = []*model.FailedPublish{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"failedPublishes": recs,
		"totalRecords":    len(recs),
	})
}
