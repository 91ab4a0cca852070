package httpx

import (
	"log/slog"
	"net/http"

	"github.com/marcbase/marcbase/internal/service"
)

// RouterServices carries the service layer the router dispatches to.
type RouterServices struct {
	// Required: record CRUD and streaming.
	Records *service.RecordService
	// Required: bulk job submission and lifecycle.
	Jobs *service.BulkJobService
	// Required: dead-letter record lookups.
	FailedPublishes *service.FailedPublishService
	// Optional: request logging. Nil disables it.
	Logger *slog.Logger
}

// NewRouter builds the HTTP handler: health endpoints plus the tenant-scoped
// API surface. Every /api route requires an X-Tenant header.
func NewRouter(svcs RouterServices) http.Handler {
	logger := svcs.Logger
	if logger == nil {
		logger = slog.Default()
	}

	records := &RecordHandlers{Svc: svcs.Records}
	jobs := &BulkJobHandlers{Svc: svcs.Jobs}
	failed := &FailedPublishHandlers{Svc: svcs.FailedPublishes}

	api := http.NewServeMux()

	api.HandleFunc("POST /api/records", records.CreateRecord)
	api.HandleFunc("GET /api/records", records.ListRecords)
	api.HandleFunc("GET /api/records/stream", records.StreamRecords)
	api.HandleFunc("GET /api/records/{id}", records.GetRecord)
	api.HandleFunc("PUT /api/records/{id}", records.UpdateRecord)
	api.HandleFunc("DELETE /api/records/{id}", records.DeleteRecord)

	api.HandleFunc("POST /api/bulk-jobs", jobs.SubmitJob)
	api.HandleFunc("GET /api/bulk-jobs", jobs.ListJobs)
	api.HandleFunc("GET /api/bulk-jobs/{id}", jobs.GetJob)
	api.HandleFunc("POST /api/bulk-jobs/{id}/cancel", jobs.CancelJob)

	api.HandleFunc("GET /api/failed-publishes", failed.ListFailedPublishes)
	api.HandleFunc("GET /api/failed-publishes/{id}", failed.GetFailedPublish)

	root := http.NewServeMux()
	root.HandleFunc("/healthz", healthHandler)
	root.Handle("/api/", RequireTenant()(api))

	return Recover(logger)(Logging(logger)(root))
}
