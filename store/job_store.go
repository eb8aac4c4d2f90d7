package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hookwatch/hookwatch/errors"
)

// Store handles persistence of jobs.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for sibling stores sharing the connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

const jobColumns = `id, name, cron_expression, end_date,
	       target_url, github_owner, github_repo, github_workflow,
	       is_active, owner_id, category_id, team_id,
	       notify_on_success, email_on_failure, notify_emails,
	       created_at, updated_at`

// CreateJob validates and inserts a new job. A missing ID is generated.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	emails, err := marshalEmails(job.NotifyEmails)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Name,
		job.CronExpression,
		job.EndDate,
		nullStr(job.TargetURL),
		nullStr(job.GitHubOwner),
		nullStr(job.GitHubRepo),
		nullStr(job.GitHubWorkflow),
		job.IsActive,
		job.OwnerID,
		nullStr(job.CategoryID),
		nullStr(job.TeamID),
		job.NotifyOnSuccess,
		job.EmailOnFailure,
		emails,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// UpdateJob validates and persists mutable job fields.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	emails, err := marshalEmails(job.NotifyEmails)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE jobs SET
			name = ?, cron_expression = ?, end_date = ?,
			target_url = ?, github_owner = ?, github_repo = ?, github_workflow = ?,
			is_active = ?, category_id = ?, team_id = ?,
			notify_on_success = ?, email_on_failure = ?, notify_emails = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		job.Name, job.CronExpression, job.EndDate,
		nullStr(job.TargetURL), nullStr(job.GitHubOwner), nullStr(job.GitHubRepo), nullStr(job.GitHubWorkflow),
		job.IsActive, nullStr(job.CategoryID), nullStr(job.TeamID),
		job.NotifyOnSuccess, job.EmailOnFailure, emails,
		now.Format(time.RFC3339),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	job.UpdatedAt = now
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("job not found: %s", id)
		}
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// ListJobs returns all jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job; execution rows cascade.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	return nil
}

// SetJobActive flips is_active without touching business fields.
// Used by the reconciler/maintenance auto-pause path.
func (s *Store) SetJobActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job active state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (*Job, error) {
	var job Job
	var targetURL, ghOwner, ghRepo, ghWorkflow sql.NullString
	var categoryID, teamID, emails sql.NullString
	var createdAt, updatedAt string

	err := r.Scan(
		&job.ID,
		&job.Name,
		&job.CronExpression,
		&job.EndDate,
		&targetURL,
		&ghOwner,
		&ghRepo,
		&ghWorkflow,
		&job.IsActive,
		&job.OwnerID,
		&categoryID,
		&teamID,
		&job.NotifyOnSuccess,
		&job.EmailOnFailure,
		&emails,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.TargetURL = targetURL.String
	job.GitHubOwner = ghOwner.String
	job.GitHubRepo = ghRepo.String
	job.GitHubWorkflow = ghWorkflow.String
	job.CategoryID = categoryID.String
	job.TeamID = teamID.String

	if emails.Valid && emails.String != "" {
		if err := json.Unmarshal([]byte(emails.String), &job.NotifyEmails); err != nil {
			return nil, errors.Wrapf(err, "failed to parse notify_emails for job %s", job.ID)
		}
	}

	job.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}

	return &job, nil
}

func marshalEmails(emails []string) (interface{}, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(emails)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal notify_emails")
	}
	return string(b), nil
}

func nullStr(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
