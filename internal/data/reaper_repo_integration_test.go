package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/testutil"
)

// TestReaperRepo_Integration_FailStaleJobs verifies stuck jobs get failed with
// the kind-appropriate terminal status while fresh jobs are untouched.
func TestReaperRepo_Integration_FailStaleJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		fixed := testutil.TestTime()
		timeProvider := NewFixedTimeProvider(fixed)
		jobs := NewBulkJobRepo(db, RepoConfig{TimeProvider: timeProvider})
		reaper := NewReaperRepo(db, RepoConfig{TimeProvider: timeProvider})
		ctx := context.Background()

		staleReindex := createTestJob(t, jobs, model.JobKindReindex)
		staleIteration := createTestJob(t, jobs, model.JobKindIteration)

		// A fresh job: created after time advances past the stale cutoff.
		timeProvider.AddTime(2 * time.Hour)
		fresh := createTestJob(t, jobs, model.JobKindIteration)

		failed, err := reaper.FailStaleJobs(ctx, time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(2), failed)

		status, err := jobs.FetchStatus(ctx, testTenant, staleReindex.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusIDPublishingFailed, status)

		status, err = jobs.FetchStatus(ctx, testTenant, staleIteration.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, status)

		got, err := jobs.GetByID(ctx, testTenant, staleIteration.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "job stalled")

		status, err = jobs.FetchStatus(ctx, testTenant, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusInProgress, status)

		// Nothing left to fail.
		failed, err = reaper.FailStaleJobs(ctx, time.Hour, 100)
		require.NoError(t, err)
		assert.Zero(t, failed)
	})
}

// TestReaperRepo_Integration_DeleteOldJobs verifies retention deletes honor
// status, age, and batch size.
func TestReaperRepo_Integration_DeleteOldJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		fixed := testutil.TestTime()
		timeProvider := NewFixedTimeProvider(fixed)
		jobs := NewBulkJobRepo(db, RepoConfig{TimeProvider: timeProvider})
		reaper := NewReaperRepo(db, RepoConfig{TimeProvider: timeProvider})
		ctx := context.Background()

		var oldTerminal []*model.BulkJob
		for i := 0; i < 3; i++ {
			job := createTestJob(t, jobs, model.JobKindIteration)
			_, err := jobs.Cancel(ctx, testTenant, job.ID)
			require.NoError(t, err)
			oldTerminal = append(oldTerminal, job)
		}
		running := createTestJob(t, jobs, model.JobKindIteration)

		timeProvider.AddTime(10 * 24 * time.Hour)

		// Batched delete: two passes of two.
		params := core.DeleteOldJobsParams{
			Statuses:  TerminalStatuses(),
			MaxAge:    7 * 24 * time.Hour,
			BatchSize: 2,
		}
		deleted, err := reaper.DeleteOldJobs(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		deleted, err = reaper.DeleteOldJobs(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		for _, job := range oldTerminal {
			_, err = jobs.GetByID(ctx, testTenant, job.ID)
			require.ErrorIs(t, err, model.ErrJobNotFound)
		}

		// The running job survives regardless of age.
		_, err = jobs.GetByID(ctx, testTenant, running.ID)
		require.NoError(t, err)

		// Non-terminal statuses are refused outright.
		_, err = reaper.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Statuses:  []model.JobStatus{model.JobStatusInProgress},
			MaxAge:    time.Hour,
			BatchSize: 10,
		})
		require.Error(t, err)
	})
}

// TestReaperRepo_Integration_DeleteOldFailedPublishes verifies dead-letter
// retention.
func TestReaperRepo_Integration_DeleteOldFailedPublishes(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		fixed := testutil.TestTime()
		timeProvider := NewFixedTimeProvider(fixed)
		failed := NewFailedPublishRepo(db, RepoConfig{TimeProvider: timeProvider})
		reaper := NewReaperRepo(db, RepoConfig{TimeProvider: timeProvider})
		ctx := context.Background()

		old, err := failed.Create(ctx, &model.CreateFailedPublishRequest{
			Tenant:    testTenant,
			TopicName: "marcbase.diku.reindex",
			Payload:   `{}`,
			Error:     "publish failed",
		})
		require.NoError(t, err)

		timeProvider.AddTime(40 * 24 * time.Hour)
		recent, err := failed.Create(ctx, &model.CreateFailedPublishRequest{
			Tenant:    testTenant,
			TopicName: "marcbase.diku.reindex",
			Payload:   `{}`,
			Error:     "publish failed",
		})
		require.NoError(t, err)

		deleted, err := reaper.DeleteOldFailedPublishes(ctx, 30*24*time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = failed.GetByID(ctx, testTenant, old.ID)
		require.ErrorIs(t, err, model.ErrFailedPublishNotFound)
		_, err = failed.GetByID(ctx, testTenant, recent.ID)
		require.NoError(t, err)
	})
}
