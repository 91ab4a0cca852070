package workflowtest

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/testutil"
)

func TestHarnessIterationJobPublishesEveryRecord(t *testing.T) {
	h := NewHarness(t, Options{})
	h.SeedRecords(25, model.RecordKindInstance)

	job := h.SubmitJob(testutil.IterationJobRequest("record-events"))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobKindIteration, job.Kind)

	done := h.WaitForTerminal(job.ID, 5*time.Second)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, int64(25), done.Processed)
	assert.Equal(t, int64(25), done.Published)

	items := h.Sinks.Items()
	require.Len(t, items, 25)

	sinks := h.Sinks.Sinks()
	require.Len(t, sinks, 1)
	assert.Equal(t, "marcbase.diku.record-events", sinks[0].Topic)
	assert.True(t, sinks[0].Closed())
}

func TestHarnessStreamReturnsEverySeededRecord(t *testing.T) {
	h := NewHarness(t, Options{})
	h.SeedRecords(5, model.RecordKindInstance)

	docs := h.StreamRecords("")
	assert.Len(t, docs, 5)
}

func TestHarnessCancelCompletedJobKeepsTerminalStatus(t *testing.T) {
	h := NewHarness(t, Options{})
	// No records: the job completes immediately.
	job := h.SubmitJob(testutil.IterationJobRequest("record-events"))

	done := h.WaitForTerminal(job.ID, 5*time.Second)
	require.Equal(t, model.JobStatusCompleted, done.Status)

	status := h.CancelJob(job.ID)
	assert.Equal(t, model.JobStatusCompleted, status)
}

func TestHarnessRequiresTenantHeader(t *testing.T) {
	h := NewHarness(t, Options{})

	req, err := http.NewRequest(http.MethodGet, h.URL("/api/records"), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
