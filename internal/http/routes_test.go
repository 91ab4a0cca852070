package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/config"
	jobsmocks "github.com/marcbase/marcbase/internal/mocks/jobs"
	"github.com/marcbase/marcbase/internal/service"
)

const testTenant = "diku"

// routerFixture wires the real router and service layer over in-memory
// repositories, so handler tests exercise the full request path.
type routerFixture struct {
	handler http.Handler
	records *jobsmocks.MemoryRecordRepo
	jobs    *jobsmocks.MemoryJobRepo
	failed  *jobsmocks.MemoryFailedPublishRepo
	sinks   *jobsmocks.CaptureSinkFactory
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	f := &routerFixture{
		records: jobsmocks.NewMemoryRecordRepo(),
		jobs:    jobsmocks.NewMemoryJobRepo(),
		failed:  jobsmocks.NewMemoryFailedPublishRepo(),
		sinks:   &jobsmocks.CaptureSinkFactory{},
	}

	runner := service.MustNewJobRunner(service.JobRunnerOptions{
		Jobs:     f.jobs,
		Rows:     f.records,
		Sinks:    f.sinks,
		Registry: service.NewRegistry(),
		Config:   config.JobsConfig{ProgressInterval: 10},
	})

	f.handler = NewRouter(RouterServices{
		Records: service.MustNewRecordService(service.RecordServiceOptions{
			Repo: f.records,
			Rows: f.records,
		}),
		Jobs: service.MustNewBulkJobService(service.BulkJobServiceOptions{
			Repo:   f.jobs,
			Runner: runner,
		}),
		FailedPublishes: service.MustNewFailedPublishService(service.FailedPublishServiceOptions{
			Repo: f.failed,
		}),
		Logger: discardLogger(),
	})
	return f
}

// do performs a request against the router with the test tenant header set.
func (f *routerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, testTenant, method, path, body)
}

func (f *routerFixture) doAs(
	t *testing.T,
	tenant, method, path string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealthEndpointSkipsTenantCheck(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterUnknownRouteReturns404(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
