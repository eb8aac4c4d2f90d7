package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hookwatch/hookwatch/errors"
)

// ExecutionStore handles persistence of job execution records.
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store.
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, job_id, status, trigger_type, started_at,
	       completed_at, duration_seconds, response_status, output, error`

// CreateExecution inserts a new 'running' execution row.
// This must be committed before any outbound call is attempted.
func (s *ExecutionStore) CreateExecution(ctx context.Context, jobID, trigger string) (*Execution, error) {
	exec := &Execution{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Status:    ExecutionStatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_executions (id, job_id, status, trigger_type, started_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		exec.ID, exec.JobID, exec.Status, exec.Trigger,
		exec.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create execution")
	}
	return exec, nil
}

// Outcome carries the terminal fields of an execution attempt.
type Outcome struct {
	ResponseStatus *int
	Output         string
	Error          string
}

// CompleteExecution transitions an execution out of 'running'.
// The WHERE status clause makes the transition single-shot: completing an
// already-terminal execution is a conflict, never an overwrite.
func (s *ExecutionStore) CompleteExecution(ctx context.Context, id, status string, outcome Outcome) error {
	if status != ExecutionStatusSuccess && status != ExecutionStatusFailed {
		return errors.NewInvalidRequestError("invalid terminal status %q", status)
	}

	completedAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_executions SET
			status = ?,
			completed_at = ?,
			duration_seconds = (julianday(?) - julianday(started_at)) * 86400.0,
			response_status = ?,
			output = ?,
			error = ?
		WHERE id = ? AND status = ?
	`,
		status,
		completedAt.Format(time.RFC3339),
		completedAt.Format(time.RFC3339),
		nullInt(outcome.ResponseStatus),
		nullStr(outcome.Output),
		nullStr(outcome.Error),
		id,
		ExecutionStatusRunning,
	)
	if err != nil {
		return errors.Wrap(err, "failed to complete execution")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrConflict, "execution already completed or missing: "+id)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM job_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("execution not found: %s", id)
		}
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return exec, nil
}

// ListExecutions returns the execution history for a job, newest first.
func (s *ExecutionStore) ListExecutions(ctx context.Context, jobID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM job_executions
		WHERE job_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// FailStuckExecutions marks executions stranded in 'running' longer than
// olderThan as failed. Returns the ids of the rows it closed out.
// These rows are the footprint of a process that died mid-call; nothing
// will ever complete them through the normal path.
//
// The comparison is on stored RFC 3339 strings, which orders correctly
// because every writer formats in UTC.
func (s *ExecutionStore) FailStuckExecutions(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM job_executions
		WHERE status = ? AND started_at < ?
	`, ExecutionStatusRunning, olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, "failed to find stuck executions")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan stuck execution id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		err := s.CompleteExecution(ctx, id, ExecutionStatusFailed, Outcome{
			Error: "execution abandoned: process terminated before completion",
		})
		if err != nil && !errors.Is(err, errors.ErrConflict) {
			return ids, err
		}
	}
	return ids, nil
}

func scanExecution(r rowScanner) (*Execution, error) {
	var exec Execution
	var startedAt string
	var completedAt sql.NullString
	var duration sql.NullFloat64
	var responseStatus sql.NullInt64
	var output, errMsg sql.NullString

	err := r.Scan(
		&exec.ID,
		&exec.JobID,
		&exec.Status,
		&exec.Trigger,
		&startedAt,
		&completedAt,
		&duration,
		&responseStatus,
		&output,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	exec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for execution %s", exec.ID)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse completed_at for execution %s", exec.ID)
		}
		exec.CompletedAt = &t
	}
	if duration.Valid {
		d := duration.Float64
		exec.DurationSeconds = &d
	}
	if responseStatus.Valid {
		code := int(responseStatus.Int64)
		exec.ResponseStatus = &code
	}
	exec.Output = output.String
	exec.Error = errMsg.String

	return &exec, nil
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
