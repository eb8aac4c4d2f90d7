package server

import (
	"time"

	"github.com/hookwatch/hookwatch/scheduler"
	"github.com/hookwatch/hookwatch/store"
)

// CreateJobRequest is the POST /api/jobs body.
type CreateJobRequest struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	EndDate        string `json:"end_date,omitempty"`

	TargetURL      string `json:"target_url,omitempty"`
	GitHubOwner    string `json:"github_owner,omitempty"`
	GitHubRepo     string `json:"github_repo,omitempty"`
	GitHubWorkflow string `json:"github_workflow,omitempty"`

	IsActive *bool `json:"is_active,omitempty"` // defaults true

	OwnerID    string `json:"owner_id"`
	CategoryID string `json:"category_id,omitempty"`
	TeamID     string `json:"team_id,omitempty"`

	NotifyOnSuccess bool     `json:"notify_on_success,omitempty"`
	EmailOnFailure  bool     `json:"email_on_failure,omitempty"`
	NotifyEmails    []string `json:"notify_emails,omitempty"`
}

// UpdateJobRequest is the PUT /api/jobs/{id} body. Pointer fields
// distinguish "leave unchanged" from "set to zero value".
type UpdateJobRequest struct {
	Name           *string `json:"name,omitempty"`
	CronExpression *string `json:"cron_expression,omitempty"`
	EndDate        *string `json:"end_date,omitempty"`

	TargetURL      *string `json:"target_url,omitempty"`
	GitHubOwner    *string `json:"github_owner,omitempty"`
	GitHubRepo     *string `json:"github_repo,omitempty"`
	GitHubWorkflow *string `json:"github_workflow,omitempty"`

	IsActive *bool `json:"is_active,omitempty"`

	CategoryID *string `json:"category_id,omitempty"`
	TeamID     *string `json:"team_id,omitempty"`

	NotifyOnSuccess *bool     `json:"notify_on_success,omitempty"`
	EmailOnFailure  *bool     `json:"email_on_failure,omitempty"`
	NotifyEmails    *[]string `json:"notify_emails,omitempty"`
}

// JobResponse is the wire shape of a job.
type JobResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	EndDate        string `json:"end_date,omitempty"`

	TargetURL      string `json:"target_url,omitempty"`
	GitHubOwner    string `json:"github_owner,omitempty"`
	GitHubRepo     string `json:"github_repo,omitempty"`
	GitHubWorkflow string `json:"github_workflow,omitempty"`

	IsActive bool `json:"is_active"`

	OwnerID    string `json:"owner_id"`
	CategoryID string `json:"category_id,omitempty"`
	TeamID     string `json:"team_id,omitempty"`

	NotifyOnSuccess bool     `json:"notify_on_success"`
	EmailOnFailure  bool     `json:"email_on_failure"`
	NotifyEmails    []string `json:"notify_emails,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListJobsResponse wraps job listings.
type ListJobsResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// ListExecutionsResponse wraps execution history listings.
type ListExecutionsResponse struct {
	Executions []*store.Execution `json:"executions"`
	Count      int                `json:"count"`
}

// TriggerResponse acknowledges a manual trigger.
type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ResyncResponse reports the out-of-band reconciliation result.
type ResyncResponse struct {
	Leader bool             `json:"leader"`
	Counts scheduler.Counts `json:"counts"`
}

// ListNotificationsResponse wraps notification listings.
type ListNotificationsResponse struct {
	Notifications []*store.Notification `json:"notifications"`
	Count         int                   `json:"count"`
}

func toJobResponse(j *store.Job) JobResponse {
	return JobResponse{
		ID:              j.ID,
		Name:            j.Name,
		CronExpression:  j.CronExpression,
		EndDate:         j.EndDate,
		TargetURL:       j.TargetURL,
		GitHubOwner:     j.GitHubOwner,
		GitHubRepo:      j.GitHubRepo,
		GitHubWorkflow:  j.GitHubWorkflow,
		IsActive:        j.IsActive,
		OwnerID:         j.OwnerID,
		CategoryID:      j.CategoryID,
		TeamID:          j.TeamID,
		NotifyOnSuccess: j.NotifyOnSuccess,
		EmailOnFailure:  j.EmailOnFailure,
		NotifyEmails:    j.NotifyEmails,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}
