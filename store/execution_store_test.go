package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookwatch/hookwatch/errors"
	hwtest "github.com/hookwatch/hookwatch/internal/testing"
)

func createTestJob(t *testing.T, store *Store) *Job {
	t.Helper()
	job := validWebhookJob()
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

func TestCreateExecution(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)

	exec, err := execs.CreateExecution(ctx, job.ID, TriggerScheduled)
	require.NoError(t, err)
	require.NotEmpty(t, exec.ID)
	assert.Equal(t, ExecutionStatusRunning, exec.Status)
	assert.Equal(t, TriggerScheduled, exec.Trigger)

	retrieved, err := execs.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusRunning, retrieved.Status)
	assert.Nil(t, retrieved.CompletedAt)
}

func TestCompleteExecutionSuccess(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)
	exec, err := execs.CreateExecution(ctx, job.ID, TriggerManual)
	require.NoError(t, err)

	code := 200
	err = execs.CompleteExecution(ctx, exec.ID, ExecutionStatusSuccess, Outcome{
		ResponseStatus: &code,
		Output:         "ok",
	})
	require.NoError(t, err)

	retrieved, err := execs.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuccess, retrieved.Status)
	require.NotNil(t, retrieved.CompletedAt)
	require.NotNil(t, retrieved.DurationSeconds)
	assert.GreaterOrEqual(t, *retrieved.DurationSeconds, 0.0)
	require.NotNil(t, retrieved.ResponseStatus)
	assert.Equal(t, 200, *retrieved.ResponseStatus)
	assert.Equal(t, "ok", retrieved.Output)
}

func TestCompleteExecutionSingleShot(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)
	exec, err := execs.CreateExecution(ctx, job.ID, TriggerManual)
	require.NoError(t, err)

	require.NoError(t, execs.CompleteExecution(ctx, exec.ID, ExecutionStatusFailed, Outcome{Error: "boom"}))

	// second transition must conflict, not overwrite
	err = execs.CompleteExecution(ctx, exec.ID, ExecutionStatusSuccess, Outcome{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	retrieved, err := execs.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, retrieved.Status)
	assert.Equal(t, "boom", retrieved.Error)
}

func TestCompleteExecutionRejectsNonTerminalStatus(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	execs := NewExecutionStore(db)

	err := execs.CompleteExecution(context.Background(), "any", ExecutionStatusRunning, Outcome{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequest(err))
}

func TestListExecutionsNewestFirst(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)

	var ids []string
	for i := 0; i < 3; i++ {
		exec, err := execs.CreateExecution(ctx, job.ID, TriggerScheduled)
		require.NoError(t, err)
		ids = append(ids, exec.ID)
		// started_at has second precision; spread the rows out
		backdate := time.Now().UTC().Add(time.Duration(i-3) * time.Minute)
		_, err = db.Exec(`UPDATE job_executions SET started_at = ? WHERE id = ?`,
			backdate.Format(time.RFC3339), exec.ID)
		require.NoError(t, err)
	}

	list, err := execs.ListExecutions(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)

	limited, err := execs.ListExecutions(ctx, job.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFailStuckExecutions(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)

	stuck, err := execs.CreateExecution(ctx, job.ID, TriggerScheduled)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE job_executions SET started_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339), stuck.ID)
	require.NoError(t, err)

	fresh, err := execs.CreateExecution(ctx, job.ID, TriggerScheduled)
	require.NoError(t, err)

	ids, err := execs.FailStuckExecutions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{stuck.ID}, ids)

	closed, err := execs.GetExecution(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, closed.Status)
	assert.Contains(t, closed.Error, "abandoned")

	untouched, err := execs.GetExecution(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusRunning, untouched.Status)
}

func TestExecutionTimestampsStoredUTC(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	execs := NewExecutionStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)

	exec, err := execs.CreateExecution(ctx, job.ID, TriggerManual)
	require.NoError(t, err)
	require.NoError(t, execs.CompleteExecution(ctx, exec.ID, ExecutionStatusSuccess, Outcome{}))

	var started, completed string
	err = db.QueryRow(`SELECT started_at, completed_at FROM job_executions WHERE id = ?`, exec.ID).
		Scan(&started, &completed)
	require.NoError(t, err)

	// lexicographic started_at comparisons only order correctly when every
	// writer uses the same offset
	assert.True(t, strings.HasSuffix(started, "Z"), started)
	assert.True(t, strings.HasSuffix(completed, "Z"), completed)
}
