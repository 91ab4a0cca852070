package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/marcbase/marcbase/config"
	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/mocks"
	jobsmocks "github.com/marcbase/marcbase/internal/mocks/jobs"
)

// errDB stands in for an arbitrary storage failure the behavioral fakes
// cannot produce on demand.
var errDB = errors.New("connection refused")

func newMockedBulkJobService(t *testing.T) (*BulkJobService, *mocks.MockBulkJobRepository) {
	t.Helper()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBulkJobRepository(ctrl)
	runner := MustNewJobRunner(JobRunnerOptions{
		Jobs:     repo,
		Rows:     &jobsmocks.SyntheticRowSource{},
		Sinks:    &jobsmocks.CaptureSinkFactory{},
		Registry: NewRegistry(),
		Config:   config.JobsConfig{ProgressInterval: 1},
	})
	svc := MustNewBulkJobService(BulkJobServiceOptions{Repo: repo, Runner: runner})
	return svc, repo
}

func TestBulkJobServiceWrapsRepoFailures(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMockedBulkJobService(t)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errDB)
	_, err := svc.Submit(ctx, testTenant, &model.SubmitJobRequest{
		Kind:       model.JobKindReindex,
		Parameters: []byte(`{"recordKind": "instance"}`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDB)
	assert.Contains(t, err.Error(), "create bulk job")

	repo.EXPECT().List(gomock.Any(), testTenant, gomock.Any()).Return(nil, errDB)
	_, err = svc.List(ctx, testTenant, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list bulk jobs")

	repo.EXPECT().Cancel(gomock.Any(), testTenant, "job-1").Return(model.JobStatus(""), errDB)
	_, err = svc.Cancel(ctx, testTenant, "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel bulk job")
}

func TestBulkJobServiceGetByIDPassesNotFoundThrough(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMockedBulkJobService(t)

	repo.EXPECT().GetByID(gomock.Any(), testTenant, "missing").Return(nil, model.ErrJobNotFound)
	_, err := svc.GetByID(ctx, testTenant, "missing")
	assert.ErrorIs(t, err, model.ErrJobNotFound)

	repo.EXPECT().GetByID(gomock.Any(), testTenant, "job-2").Return(nil, errDB)
	_, err = svc.GetByID(ctx, testTenant, "job-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, errDB)
	assert.Contains(t, err.Error(), "get bulk job")
}

func TestRecordServiceWrapsRepoFailures(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := MustNewRecordService(RecordServiceOptions{
		Repo: repo,
		Rows: &jobsmocks.SyntheticRowSource{},
	})

	repo.EXPECT().Create(gomock.Any(), testTenant, gomock.Any()).Return(nil, errDB)
	_, err := svc.Create(ctx, testTenant, &model.CreateRecordRequest{
		Kind:     model.RecordKindInstance,
		Document: []byte(`{}`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDB)
	assert.Contains(t, err.Error(), "create record")

	repo.EXPECT().GetByID(gomock.Any(), testTenant, "missing").Return(nil, data.ErrRecordNotFound)
	_, err = svc.GetByID(ctx, testTenant, "missing")
	assert.ErrorIs(t, err, data.ErrRecordNotFound)

	repo.EXPECT().Update(gomock.Any(), testTenant, gomock.Any()).Return(nil, errDB)
	_, err = svc.Update(ctx, testTenant, &model.Record{ID: "rec-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update record")

	repo.EXPECT().Delete(gomock.Any(), testTenant, "rec-1").Return(errDB)
	err = svc.Delete(ctx, testTenant, "rec-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete record")

	repo.EXPECT().List(gomock.Any(), testTenant, gomock.Any()).Return(nil, errDB)
	_, err = svc.List(ctx, testTenant, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list records")
}

func TestFailedPublishServiceWrapsRepoFailures(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockFailedPublishRepository(ctrl)
	svc := MustNewFailedPublishService(FailedPublishServiceOptions{Repo: repo})

	repo.EXPECT().GetByID(gomock.Any(), testTenant, "missing").
		Return(nil, model.ErrFailedPublishNotFound)
	_, err := svc.GetByID(ctx, testTenant, "missing")
	assert.ErrorIs(t, err, model.ErrFailedPublishNotFound)

	repo.EXPECT().GetByID(gomock.Any(), testTenant, "fp-1").Return(nil, errDB)
	_, err = svc.GetByID(ctx, testTenant, "fp-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get failed publish")

	repo.EXPECT().List(gomock.Any(), testTenant, gomock.Any()).Return(nil, errDB)
	_, err = svc.List(ctx, testTenant, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list failed publishes")
}
