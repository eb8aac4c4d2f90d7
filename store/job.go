// Package store persists jobs, their execution history, and notifications.
package store

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hookwatch/hookwatch/errors"
)

// DateLayout is the storage format for end_date values. An end_date has no
// time-of-day; it is interpreted in the scheduler's reference timezone.
const DateLayout = "2006-01-02"

// cronParser validates the standard 5-field cron syntax
// (minute hour day-of-month month day-of-week) at write time.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is a recurring task that invokes an external HTTP target.
// Exactly one target mode is set: a generic webhook URL, or a GitHub
// Actions workflow-dispatch triple.
type Job struct {
	ID             string
	Name           string
	CronExpression string
	EndDate        string // YYYY-MM-DD, last day the job may run (inclusive); empty means no end date

	TargetURL      string
	GitHubOwner    string
	GitHubRepo     string
	GitHubWorkflow string

	IsActive bool

	OwnerID    string
	CategoryID string
	TeamID     string

	NotifyOnSuccess bool
	EmailOnFailure  bool
	NotifyEmails    []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasGitHubTarget reports whether the job uses workflow dispatch.
func (j *Job) HasGitHubTarget() bool {
	return j.GitHubOwner != "" && j.GitHubRepo != "" && j.GitHubWorkflow != ""
}

// HasWebhookTarget reports whether the job uses a generic webhook URL.
func (j *Job) HasWebhookTarget() bool {
	return j.TargetURL != ""
}

// EndDateIn parses the job's end_date in the given location.
// The returned time is midnight at the start of the end date.
func (j *Job) EndDateIn(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, j.EndDate, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid end_date %q for job %s", j.EndDate, j.ID)
	}
	return t, nil
}

// ExpiredAt reports whether the job's end_date has strictly passed relative
// to now in the given location. A job whose end_date equals today is NOT
// expired: it may still run through the end of that day.
func (j *Job) ExpiredAt(now time.Time, loc *time.Location) bool {
	if j.EndDate == "" {
		return false
	}
	end, err := j.EndDateIn(loc)
	if err != nil {
		// Unparseable dates were rejected at write time; stored garbage
		// must not keep firing.
		return true
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return end.Before(today)
}

// Validate checks the invariants enforced at create/update time.
// Invalid jobs never reach the trigger engine.
func (j *Job) Validate() error {
	if j.Name == "" {
		return errors.NewInvalidRequestError("name is required")
	}
	if j.OwnerID == "" {
		return errors.NewInvalidRequestError("owner_id is required")
	}
	if _, err := cronParser.Parse(j.CronExpression); err != nil {
		return errors.NewInvalidRequestError("invalid cron expression %q: %v", j.CronExpression, err)
	}
	if j.EndDate != "" {
		if _, err := time.Parse(DateLayout, j.EndDate); err != nil {
			return errors.NewInvalidRequestError("invalid end_date %q, expected YYYY-MM-DD", j.EndDate)
		}
	}

	// Partial GitHub triples are ambiguous; require all or none.
	partialGitHub := (j.GitHubOwner != "" || j.GitHubRepo != "" || j.GitHubWorkflow != "") && !j.HasGitHubTarget()
	if partialGitHub {
		return errors.NewInvalidRequestError("github target requires owner, repo, and workflow")
	}

	switch {
	case j.HasWebhookTarget() && j.HasGitHubTarget():
		return errors.NewInvalidRequestError("job must have exactly one target: target_url or github fields, not both")
	case !j.HasWebhookTarget() && !j.HasGitHubTarget():
		return errors.NewInvalidRequestError("job must have exactly one target: target_url or github fields")
	}

	return nil
}

// ValidCron reports whether a stored cron expression still parses.
// The reconciler uses this to skip rows that predate stricter validation.
func ValidCron(expr string) bool {
	_, err := cronParser.Parse(expr)
	return err == nil
}
