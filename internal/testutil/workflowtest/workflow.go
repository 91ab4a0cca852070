// Package workflowtest provides an end-to-end test harness for the record
// store and bulk job engine: in-memory repositories, a capturing event sink,
// the real service layer and job runner, all behind a real HTTP server.
package workflowtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/marcbase/marcbase/config"
	"github.com/marcbase/marcbase/internal/domain/model"
	httpx "github.com/marcbase/marcbase/internal/http"
	jobsmocks "github.com/marcbase/marcbase/internal/mocks/jobs"
	"github.com/marcbase/marcbase/internal/service"
	"github.com/marcbase/marcbase/internal/testutil"
)

// DefaultTenant is the tenant the harness uses unless overridden.
const DefaultTenant = "diku"

// Options configures the workflow test harness.
type Options struct {
	// Tenant overrides the default tenant.
	Tenant string
	// Jobs overrides the job engine configuration. Zero-value fields get
	// small, test-friendly defaults (tight progress interval, shallow sink).
	Jobs config.JobsConfig
	// SinkOfferErr, when set, makes every event sink Offer fail.
	SinkOfferErr error
}

// Harness wires the full stack minus Postgres and Redis. All fields are
// exported so tests can reach past the HTTP surface when they need to.
type Harness struct {
	t      testutil.TestingTB
	server *httptest.Server

	Tenant string

	Records    *jobsmocks.MemoryRecordRepo
	JobRepo    *jobsmocks.MemoryJobRepo
	FailedRepo *jobsmocks.MemoryFailedPublishRepo
	Sinks      *jobsmocks.CaptureSinkFactory
	Registry   *service.Registry

	RecordSvc *service.RecordService
	JobSvc    *service.BulkJobService
	FailedSvc *service.FailedPublishService
}

// NewHarness builds the harness and starts its HTTP server. Cleanup is
// registered with t when it supports it; otherwise call Close.
func NewHarness(t testutil.TestingTB, opts Options) *Harness {
	t.Helper()

	if opts.Tenant == "" {
		opts.Tenant = DefaultTenant
	}
	if opts.Jobs.ProgressInterval == 0 {
		opts.Jobs.ProgressInterval = 10
	}
	if opts.Jobs.SinkHighWater == 0 {
		opts.Jobs.SinkHighWater = 8
	}
	if opts.Jobs.ShutdownGrace == 0 {
		opts.Jobs.ShutdownGrace = 5 * time.Second
	}

	h := &Harness{
		t:          t,
		Tenant:     opts.Tenant,
		Records:    jobsmocks.NewMemoryRecordRepo(),
		JobRepo:    jobsmocks.NewMemoryJobRepo(),
		FailedRepo: jobsmocks.NewMemoryFailedPublishRepo(),
		Sinks:      &jobsmocks.CaptureSinkFactory{OfferErr: opts.SinkOfferErr},
		Registry:   service.NewRegistry(),
	}

	runner := service.MustNewJobRunner(service.JobRunnerOptions{
		Jobs:     h.JobRepo,
		Rows:     h.Records,
		Sinks:    h.Sinks,
		Registry: h.Registry,
		Config:   opts.Jobs,
	})
	h.RecordSvc = service.MustNewRecordService(service.RecordServiceOptions{
		Repo: h.Records,
		Rows: h.Records,
	})
	h.JobSvc = service.MustNewBulkJobService(service.BulkJobServiceOptions{
		Repo:   h.JobRepo,
		Runner: runner,
	})
	h.FailedSvc = service.MustNewFailedPublishService(service.FailedPublishServiceOptions{
		Repo: h.FailedRepo,
	})

	h.server = httptest.NewServer(httpx.NewRouter(httpx.RouterServices{
		Records:         h.RecordSvc,
		Jobs:            h.JobSvc,
		FailedPublishes: h.FailedSvc,
	}))

	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(h.Close)
	}
	return h
}

// Close stops the HTTP server and drains running jobs.
func (h *Harness) Close() {
	h.server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Registry.Shutdown(ctx); err != nil {
		h.t.Logf("warning: jobs did not drain on harness close: %v", err)
	}
}

// URL returns the server address joined with path.
func (h *Harness) URL(path string) string {
	return h.server.URL + path
}

// Do sends a request with the tenant header set and returns the response.
// A non-nil body is JSON-encoded.
func (h *Harness) Do(method, path string, body any) *http.Response {
	h.t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, h.URL(path), buf)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Tenant", h.Tenant)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// DecodeBody decodes the response body into out and closes it.
func (h *Harness) DecodeBody(resp *http.Response, out any) {
	h.t.Helper()
	defer closeBody(h.t, resp)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response body: %v", err)
	}
}

// SeedRecords creates n records of the kind directly in the store and returns
// their ids in creation order.
func (h *Harness) SeedRecords(n int, kind model.RecordKind) []string {
	h.t.Helper()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec, err := h.RecordSvc.Create(context.Background(), h.Tenant, &model.CreateRecordRequest{
			Kind:     kind,
			Document: instanceDoc(i),
		})
		if err != nil {
			h.t.Fatalf("seed record %d: %v", i, err)
		}
		ids = append(ids, rec.ID)
	}
	return ids
}

// SubmitJob submits a bulk job over HTTP and returns the created job.
func (h *Harness) SubmitJob(req *model.SubmitJobRequest) *model.BulkJob {
	h.t.Helper()

	resp := h.Do(http.MethodPost, "/api/bulk-jobs", req)
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("submit job: unexpected status %d", resp.StatusCode)
	}
	var job model.BulkJob
	h.DecodeBody(resp, &job)
	return &job
}

// GetJob fetches one job over HTTP.
func (h *Harness) GetJob(id string) *model.BulkJob {
	h.t.Helper()

	resp := h.Do(http.MethodGet, "/api/bulk-jobs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("get job %s: unexpected status %d", id, resp.StatusCode)
	}
	var job model.BulkJob
	h.DecodeBody(resp, &job)
	return &job
}

// CancelJob requests cancellation over HTTP and returns the reported status.
func (h *Harness) CancelJob(id string) model.JobStatus {
	h.t.Helper()

	resp := h.Do(http.MethodPost, "/api/bulk-jobs/"+id+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("cancel job %s: unexpected status %d", id, resp.StatusCode)
	}
	var out struct {
		Status model.JobStatus `json:"status"`
	}
	h.DecodeBody(resp, &out)
	return out.Status
}

// WaitForTerminal polls the job until it reaches a terminal status or the
// timeout elapses.
func (h *Harness) WaitForTerminal(id string, timeout time.Duration) *model.BulkJob {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job := h.GetJob(id)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("job %s did not reach a terminal status within %v", id, timeout)
	return nil
}

// StreamRecords requests the streaming query endpoint and returns the decoded
// NDJSON documents.
func (h *Harness) StreamRecords(query string) []json.RawMessage {
	h.t.Helper()

	path := "/api/records/stream"
	if query != "" {
		path += "?" + query
	}
	resp := h.Do(http.MethodGet, path, nil)
	defer closeBody(h.t, resp)

	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("stream records: unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		h.t.Fatalf("stream records: unexpected content type %q", ct)
	}

	var docs []json.RawMessage
	dec := json.NewDecoder(resp.Body)
	for {
		var doc json.RawMessage
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			h.t.Fatalf("decode stream line %d: %v", len(docs), err)
		}
		docs = append(docs, doc)
	}
	return docs
}

func closeBody(t testutil.TestingTB, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		t.Logf("warning: failed to close response body: %v", err)
	}
}

// instanceDoc builds a small instance document for seeding.
func instanceDoc(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"title": "Instance %d", "source": "MARC"}`, i))
}
