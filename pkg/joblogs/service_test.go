package joblogs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/migrations"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func seedJob(t *testing.T, db *bun.DB) *models.Job {
	t.Helper()

	job := &models.Job{Kind: models.JobKindLibraryScan, Name: "Library scan"}
	require.NoError(t, jobs.NewService(db).CreateJob(context.Background(), job))
	return job
}

func TestCreateJobLog(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	job := seedJob(t, db)

	log := &models.JobLog{
		JobID:   job.ID,
		Level:   models.JobLogLevelInfo,
		Message: "scan started",
	}
	err := svc.CreateJobLog(ctx, log)
	require.NoError(t, err)
	assert.NotZero(t, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
}

func TestCreateJobLogs_Batch(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	job := seedJob(t, db)

	batch := []*models.JobLog{
		{JobID: job.ID, Level: models.JobLogLevelInfo, Message: "one"},
		{JobID: job.ID, Level: models.JobLogLevelWarn, Message: "two"},
		{JobID: job.ID, Level: models.JobLogLevelError, Message: "three"},
	}
	require.NoError(t, svc.CreateJobLogs(ctx, batch))

	logs, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, logs, 3)

	// Batch order is preserved.
	assert.Equal(t, "one", logs[0].Message)
	assert.Equal(t, "two", logs[1].Message)
	assert.Equal(t, "three", logs[2].Message)
}

func TestCreateJobLogs_Empty(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	assert.NoError(t, svc.CreateJobLogs(context.Background(), nil))
}

func TestListJobLogs_Filters(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	job := seedJob(t, db)
	other := seedJob(t, db)

	batch := []*models.JobLog{
		{JobID: job.ID, Level: models.JobLogLevelInfo, Message: "processing file one"},
		{JobID: job.ID, Level: models.JobLogLevelWarn, Message: "skipped hidden entry"},
		{JobID: job.ID, Level: models.JobLogLevelError, Message: "corrupt archive"},
		{JobID: other.ID, Level: models.JobLogLevelInfo, Message: "other job"},
	}
	require.NoError(t, svc.CreateJobLogs(ctx, batch))

	logs, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: job.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	logs, err = svc.ListJobLogs(ctx, ListJobLogsOptions{
		JobID:  job.ID,
		Levels: []string{models.JobLogLevelWarn, models.JobLogLevelError},
	})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.JobLogLevelWarn, logs[0].Level)
	assert.Equal(t, models.JobLogLevelError, logs[1].Level)

	logs, err = svc.ListJobLogs(ctx, ListJobLogsOptions{
		JobID:  job.ID,
		Search: pointerutil.String("archive"),
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "corrupt archive", logs[0].Message)
}

func TestListJobLogs_AfterID(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	job := seedJob(t, db)

	batch := []*models.JobLog{
		{JobID: job.ID, Level: models.JobLogLevelInfo, Message: "one"},
		{JobID: job.ID, Level: models.JobLogLevelInfo, Message: "two"},
		{JobID: job.ID, Level: models.JobLogLevelInfo, Message: "three"},
	}
	require.NoError(t, svc.CreateJobLogs(ctx, batch))

	all, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)

	logs, err := svc.ListJobLogs(ctx, ListJobLogsOptions{
		JobID:   job.ID,
		AfterID: &all[0].ID,
	})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "two", logs[0].Message)
	assert.Equal(t, "three", logs[1].Message)
}
