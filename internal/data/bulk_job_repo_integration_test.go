package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/testutil"
)

func createTestJob(t *testing.T, repo *BulkJobRepo, kind model.JobKind) *model.BulkJob {
	t.Helper()
	job, err := repo.Create(context.Background(), &model.BulkJob{
		Tenant:     testTenant,
		Kind:       kind,
		Status:     model.JobStatusInProgress,
		Parameters: json.RawMessage(`{"recordKind": "instance"}`),
	})
	require.NoError(t, err)
	return job
}

// TestBulkJobRepo_Integration_CreateAndGet tests job creation defaults.
func TestBulkJobRepo_Integration_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})

		job := createTestJob(t, repo, model.JobKindReindex)
		require.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusInProgress, job.Status)
		assert.False(t, job.SubmittedDate.IsZero())
		assert.Zero(t, job.Processed)
		assert.Zero(t, job.Published)

		got, err := repo.GetByID(context.Background(), testTenant, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.JSONEq(t, `{"recordKind": "instance"}`, string(got.Parameters))

		_, err = repo.GetByID(context.Background(), testTenant, "550e8400-e29b-41d4-a716-446655440999")
		require.ErrorIs(t, err, model.ErrJobNotFound)

		// Same explicit id twice surfaces the unique violation.
		_, err = repo.Create(context.Background(), &model.BulkJob{
			ID:     job.ID,
			Tenant: testTenant,
			Kind:   model.JobKindReindex,
			Status: model.JobStatusInProgress,
		})
		require.Error(t, err)
	})
}

// TestBulkJobRepo_Integration_CountersAreMonotonic verifies a stale flush
// never lowers progress.
func TestBulkJobRepo_Integration_CountersAreMonotonic(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})
		job := createTestJob(t, repo, model.JobKindMigration)
		ctx := context.Background()

		require.NoError(t, repo.UpdateCounters(ctx, core.UpdateCountersParams{
			Tenant:    testTenant,
			ID:        job.ID,
			Processed: 500,
			Published: 480,
			Counters: map[string]model.CategoryCounter{
				"publicationPeriodMigration": {Processed: 500, Published: 480},
			},
		}))

		// A flush that lost the race carries lower numbers.
		require.NoError(t, repo.UpdateCounters(ctx, core.UpdateCountersParams{
			Tenant:    testTenant,
			ID:        job.ID,
			Processed: 300,
			Published: 300,
		}))

		got, err := repo.GetByID(ctx, testTenant, job.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.Processed)
		assert.Equal(t, int64(480), got.Published)
		require.Contains(t, got.Counters, "publicationPeriodMigration")
		assert.Equal(t, int64(500), got.Counters["publicationPeriodMigration"].Processed)
	})
}

// TestBulkJobRepo_Integration_TransitionStatus tests the conditional status
// machine.
func TestBulkJobRepo_Integration_TransitionStatus(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})
		job := createTestJob(t, repo, model.JobKindReindex)
		ctx := context.Background()

		// in_progress -> ids_published
		status, err := repo.TransitionStatus(ctx, core.TransitionStatusParams{
			Tenant:    testTenant,
			ID:        job.ID,
			From:      []model.JobStatus{model.JobStatusInProgress},
			To:        model.JobStatusIDsPublished,
			Processed: 100,
			Published: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusIDsPublished, status)

		// A transition whose From set no longer matches writes nothing and
		// reports the status it found.
		status, err = repo.TransitionStatus(ctx, core.TransitionStatusParams{
			Tenant: testTenant,
			ID:     job.ID,
			From:   []model.JobStatus{model.JobStatusInProgress},
			To:     model.JobStatusFailed,
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusIDsPublished, status)

		// ids_published -> completed
		status, err = repo.TransitionStatus(ctx, core.TransitionStatusParams{
			Tenant: testTenant,
			ID:     job.ID,
			From:   []model.JobStatus{model.JobStatusIDsPublished},
			To:     model.JobStatusCompleted,
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, status)

		// Terminal statuses stay put.
		status, err = repo.TransitionStatus(ctx, core.TransitionStatusParams{
			Tenant:    testTenant,
			ID:        job.ID,
			From:      []model.JobStatus{model.JobStatusInProgress, model.JobStatusIDsPublished},
			To:        model.JobStatusFailed,
			LastError: "too late",
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, status)

		got, err := repo.GetByID(ctx, testTenant, job.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LastError)

		_, err = repo.TransitionStatus(ctx, core.TransitionStatusParams{
			Tenant: testTenant,
			ID:     "550e8400-e29b-41d4-a716-446655440999",
			From:   []model.JobStatus{model.JobStatusInProgress},
			To:     model.JobStatusCompleted,
		})
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}

// TestBulkJobRepo_Integration_TransitionRecordsLastError checks the error text
// lands with a failing transition.
func TestBulkJobRepo_Integration_TransitionRecordsLastError(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})
		job := createTestJob(t, repo, model.JobKindIteration)
		ctx := context.Background()

		status, err := repo.TransitionStatus(ctx, core.TransitionStatusParams{
			Tenant:    testTenant,
			ID:        job.ID,
			From:      []model.JobStatus{model.JobStatusInProgress},
			To:        model.JobStatusFailed,
			Processed: 42,
			LastError: "stream failed: broker unavailable",
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, status)

		got, err := repo.GetByID(ctx, testTenant, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "stream failed: broker unavailable", *got.LastError)
		assert.Equal(t, int64(42), got.Processed)
	})
}

// TestBulkJobRepo_Integration_Cancel tests both cancelled variants and the
// terminal no-op.
func TestBulkJobRepo_Integration_Cancel(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})
		ctx := context.Background()

		reindex := createTestJob(t, repo, model.JobKindReindex)
		status, err := repo.Cancel(ctx, testTenant, reindex.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusIDPublishingCancelled, status)

		iteration := createTestJob(t, repo, model.JobKindIteration)
		status, err = repo.Cancel(ctx, testTenant, iteration.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, status)

		// Cancelling again reads the terminal status without rewriting it.
		status, err = repo.Cancel(ctx, testTenant, iteration.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, status)

		_, err = repo.Cancel(ctx, testTenant, "550e8400-e29b-41d4-a716-446655440999")
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}

// TestBulkJobRepo_Integration_ListFilters tests list filtering and ordering.
func TestBulkJobRepo_Integration_ListFilters(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})
		ctx := context.Background()

		createTestJob(t, repo, model.JobKindReindex)
		iteration := createTestJob(t, repo, model.JobKindIteration)
		_, err := repo.Cancel(ctx, testTenant, iteration.ID)
		require.NoError(t, err)

		all, err := repo.List(ctx, testTenant, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		reindexes, err := repo.List(ctx, testTenant, &model.JobListOptions{
			Kind: model.JobKindReindex,
		})
		require.NoError(t, err)
		require.Len(t, reindexes, 1)
		assert.Equal(t, model.JobKindReindex, reindexes[0].Kind)

		cancelled, err := repo.List(ctx, testTenant, &model.JobListOptions{
			Status: model.JobStatusCancelled,
		})
		require.NoError(t, err)
		require.Len(t, cancelled, 1)
		assert.Equal(t, iteration.ID, cancelled[0].ID)

		none, err := repo.List(ctx, "other_library", nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// TestBulkJobRepo_Integration_FetchStatus tests the single-column status poll.
func TestBulkJobRepo_Integration_FetchStatus(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewBulkJobRepo(db, RepoConfig{})
		job := createTestJob(t, repo, model.JobKindIteration)
		ctx := context.Background()

		status, err := repo.FetchStatus(ctx, testTenant, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusInProgress, status)

		_, err = repo.Cancel(ctx, testTenant, job.ID)
		require.NoError(t, err)

		status, err = repo.FetchStatus(ctx, testTenant, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, status)

		_, err = repo.FetchStatus(ctx, testTenant, "550e8400-e29b-41d4-a716-446655440999")
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}
