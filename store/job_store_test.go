package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookwatch/hookwatch/errors"
	hwtest "github.com/hookwatch/hookwatch/internal/testing"
)

func TestCreateAndGetJob(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := validWebhookJob()
	job.NotifyEmails = []string{"ops@example.com", "dev@example.com"}

	require.NoError(t, store.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)
	require.False(t, job.CreatedAt.IsZero())

	retrieved, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, retrieved.Name)
	assert.Equal(t, job.CronExpression, retrieved.CronExpression)
	assert.Equal(t, job.EndDate, retrieved.EndDate)
	assert.Equal(t, job.TargetURL, retrieved.TargetURL)
	assert.True(t, retrieved.IsActive)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, retrieved.NotifyEmails)
}

func TestCreateJobRejectsInvalid(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)

	job := validWebhookJob()
	job.CronExpression = "garbage"

	err := store.CreateJob(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequest(err))
}

func TestGetJobNotFound(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)

	_, err := store.GetJob(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateJob(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := validWebhookJob()
	require.NoError(t, store.CreateJob(ctx, job))

	job.Name = "nightly-report-v2"
	job.CronExpression = "30 3 * * *"
	require.NoError(t, store.UpdateJob(ctx, job))

	retrieved, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly-report-v2", retrieved.Name)
	assert.Equal(t, "30 3 * * *", retrieved.CronExpression)
}

func TestUpdateJobNotFound(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)

	job := validWebhookJob()
	job.ID = "no-such-id"

	err := store.UpdateJob(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteJob(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := validWebhookJob()
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.DeleteJob(ctx, job.ID))

	_, err := store.GetJob(ctx, job.ID)
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(store.DeleteJob(ctx, job.ID)))
}

func TestDeleteJobCascadesExecutions(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := validWebhookJob()
	require.NoError(t, store.CreateJob(ctx, job))

	exec, err := execs.CreateExecution(ctx, job.ID, TriggerManual)
	require.NoError(t, err)

	require.NoError(t, store.DeleteJob(ctx, job.ID))

	_, err = execs.GetExecution(ctx, exec.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestSetJobActive(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	job := validWebhookJob()
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, store.SetJobActive(ctx, job.ID, false))
	retrieved, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.IsActive)

	require.NoError(t, store.SetJobActive(ctx, job.ID, true))
	retrieved, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.IsActive)

	assert.True(t, errors.IsNotFound(store.SetJobActive(ctx, "no-such-id", false)))
}

func TestListJobs(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	for i := 0; i < 3; i++ {
		job := validWebhookJob()
		require.NoError(t, store.CreateJob(ctx, job))
	}

	jobs, err = store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
