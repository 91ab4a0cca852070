package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/config"
	"github.com/marcbase/marcbase/internal/domain/model"
)

func newJobService(t *testing.T, rows int) (*BulkJobService, *runnerFixture) {
	t.Helper()

	f := newRunnerFixture(t, rows, config.JobsConfig{})
	svc := MustNewBulkJobService(BulkJobServiceOptions{
		Repo:   f.repo,
		Runner: f.runner,
	})
	return svc, f
}

func waitTerminal(t *testing.T, f *runnerFixture, id string) *model.BulkJob {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := f.jobState(t, id)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return nil
}

func TestBulkJobSubmitPersistsAndRuns(t *testing.T) {
	svc, f := newJobService(t, 20)

	job, err := svc.Submit(context.Background(), testTenant, &model.SubmitJobRequest{
		Kind:       model.JobKindReindex,
		Parameters: json.RawMessage(`{"recordKind": "item"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, testTenant, job.Tenant)
	assert.Equal(t, model.JobStatusInProgress, job.Status)
	assert.False(t, job.SubmittedDate.IsZero())

	done := waitTerminal(t, f, job.ID)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, int64(20), done.Processed)
}

func TestBulkJobSubmitRejectsBadParameters(t *testing.T) {
	svc, f := newJobService(t, 0)

	tests := []struct {
		name string
		req  *model.SubmitJobRequest
	}{
		{"nil request", nil},
		{"invalid kind", &model.SubmitJobRequest{Kind: "compact"}},
		{
			"reindex without record kind",
			&model.SubmitJobRequest{Kind: model.JobKindReindex, Parameters: json.RawMessage(`{}`)},
		},
		{
			"iteration without topic",
			&model.SubmitJobRequest{Kind: model.JobKindIteration, Parameters: json.RawMessage(`{"eventType": "E"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), testTenant, tt.req)
			assert.Error(t, err)
		})
	}

	// Nothing persisted for rejected submissions.
	jobs, err := f.repo.List(context.Background(), testTenant, nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestBulkJobSubmitDuplicateIDFails(t *testing.T) {
	svc, _ := newJobService(t, 50)

	req := &model.SubmitJobRequest{
		ID:         "11111111-1111-1111-1111-111111111111",
		Kind:       model.JobKindIteration,
		Parameters: json.RawMessage(`{"topicName": "t", "eventType": "E"}`),
	}
	_, err := svc.Submit(context.Background(), testTenant, req)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), testTenant, req)
	assert.Error(t, err)
}

func TestBulkJobCancelUnknownJob(t *testing.T) {
	svc, _ := newJobService(t, 0)

	_, err := svc.Cancel(context.Background(), testTenant, "missing")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestBulkJobCancelTerminalJobReturnsExistingStatus(t *testing.T) {
	svc, f := newJobService(t, 0)

	job, err := svc.Submit(context.Background(), testTenant, &model.SubmitJobRequest{
		Kind:       model.JobKindIteration,
		Parameters: json.RawMessage(`{"topicName": "t", "eventType": "E"}`),
	})
	require.NoError(t, err)
	waitTerminal(t, f, job.ID)

	status, err := svc.Cancel(context.Background(), testTenant, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, status)
}

func TestBulkJobGetByIDScopedToTenant(t *testing.T) {
	svc, _ := newJobService(t, 0)

	job, err := svc.Submit(context.Background(), testTenant, &model.SubmitJobRequest{
		Kind:       model.JobKindIteration,
		Parameters: json.RawMessage(`{"topicName": "t", "eventType": "E"}`),
	})
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), "other", job.ID)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestBulkJobListFilters(t *testing.T) {
	svc, f := newJobService(t, 0)

	for _, kind := range []model.JobKind{model.JobKindReindex, model.JobKindIteration} {
		_, err := f.repo.Create(context.Background(), &model.BulkJob{
			Tenant: testTenant,
			Kind:   kind,
			Status: model.JobStatusCompleted,
		})
		require.NoError(t, err)
	}

	jobs, err := svc.List(context.Background(), testTenant, &model.JobListOptions{Kind: model.JobKindReindex})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobKindReindex, jobs[0].Kind)
}
