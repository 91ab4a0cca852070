package httpx

import (
	"errors"
	"net/http"

	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/service"
)

// BulkJobHandlers provides HTTP handlers for bulk job operations.
type BulkJobHandlers struct {
	Svc *service.BulkJobService
}

// SubmitJob handles HTTP requests to submit a new bulk job.
func (h *BulkJobHandlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), TenantFromContext(r.Context()), &req)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "submit_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetJob handles HTTP requests to fetch one bulk job with its progress.
func (h *BulkJobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	job, err := h.Svc.GetByID(r.Context(), TenantFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

const (
	defaultJobPageSize = 50
	maxJobPageSize     = 500
)

// ListJobs handles HTTP requests to list bulk jobs.
func (h *BulkJobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts := &model.JobListOptions{}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultJobPageSize, maxJobPageSize)

	if kind := r.URL.Query().Get("kind"); kind != "" {
		if err := opts.Kind.UnmarshalText([]byte(kind)); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_kind", Err: err})
			return
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := model.JobStatus(status)
		if !s.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_status",
				Err:     errors.New("unknown job status"),
			})
			return
		}
		opts.Status = s
	}

	jobs, err := h.Svc.List(r.Context(), TenantFromContext(r.Context()), opts)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	if jobs == nil {
		jobs = []*model.BulkJob{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":      jobs,
		"totalJobs": len(jobs),
	})
}

// CancelJob handles HTTP requests to cancel a running bulk job. The response
// carries the status the job holds after the request; cancelling a terminal
// job is a no-op that reports the terminal status.
func (h *BulkJobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	status, err := h.Svc.Cancel(r.Context(), TenantFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "cancel_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}
