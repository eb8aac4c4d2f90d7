package store

import "time"

// Execution records a single attempt to run a job.
//
// Rows are created the instant an attempt begins, before the outbound call,
// so a process crash mid-call is observable as a stuck 'running' row rather
// than silent loss. Once a terminal status is set the row is immutable.
type Execution struct {
	ID      string `json:"id"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`       // running | success | failed
	Trigger string `json:"trigger_type"` // scheduled | manual

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`

	ResponseStatus *int   `json:"response_status,omitempty"`
	Output         string `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Execution status constants. The only legal transition is
// running -> success or running -> failed.
const (
	ExecutionStatusRunning = "running"
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// Trigger type constants; set at creation time and never changed.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)
