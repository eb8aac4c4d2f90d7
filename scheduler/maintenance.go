package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/notify"
	"github.com/hookwatch/hookwatch/store"
)

const (
	// maintenanceEntryID is the reserved trigger-engine id for the weekly
	// sweep. It carries the maintenance prefix so the reconciler's orphan
	// sweep leaves it alone.
	maintenanceEntryID = maintenancePrefix + "end-date-sweep"

	// maintenanceSpec fires Monday 09:00 in the configured timezone.
	maintenanceSpec = "0 9 * * 1"
)

// Maintenance is the weekly housekeeping sweep: pause anything the
// reconciler may not have caught yet, then warn owners about jobs whose end
// date falls within the lookahead window. A Slack summary is posted on a
// best-effort basis.
type Maintenance struct {
	jobs          *store.Store
	engine        *TriggerEngine
	notifier      *notify.Notifier
	loc           *time.Location
	lookaheadDays int
	log           *zap.SugaredLogger
}

func NewMaintenance(
	jobs *store.Store,
	engine *TriggerEngine,
	notifier *notify.Notifier,
	loc *time.Location,
	lookaheadDays int,
	log *zap.SugaredLogger,
) *Maintenance {
	if lookaheadDays <= 0 {
		lookaheadDays = 30
	}
	return &Maintenance{
		jobs:          jobs,
		engine:        engine,
		notifier:      notifier,
		loc:           loc,
		lookaheadDays: lookaheadDays,
		log:           log,
	}
}

// Register adds the sweep to the trigger engine under its reserved id.
func (m *Maintenance) Register() error {
	_, err := m.engine.Schedule(maintenanceEntryID, maintenanceSpec, func() {
		if err := m.Sweep(context.Background()); err != nil {
			m.log.Errorw("Maintenance sweep failed", "error", err)
		}
	})
	return err
}

// Sweep runs one pass. Exported so an operator can invoke it out of band.
func (m *Maintenance) Sweep(ctx context.Context) error {
	jobs, err := m.jobs.ListJobs(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	horizon := now.In(m.loc).AddDate(0, 0, m.lookaheadDays)

	var paused, expiring []*store.Job

	for _, job := range jobs {
		if !job.IsActive || job.EndDate == "" {
			continue
		}

		if job.ExpiredAt(now, m.loc) {
			autoPauseExpired(ctx, m.jobs, m.engine, m.notifier, job, m.log)
			paused = append(paused, job)
			continue
		}

		end, err := job.EndDateIn(m.loc)
		if err != nil {
			m.log.Errorw("Job has unparseable end date, skipping",
				"job_id", job.ID, "end_date", job.EndDate)
			continue
		}
		if !end.After(horizon) {
			expiring = append(expiring, job)
		}
	}

	sort.Slice(expiring, func(i, j int) bool {
		return expiring[i].EndDate < expiring[j].EndDate
	})

	for _, job := range expiring {
		m.notifier.Notify(ctx, job.OwnerID,
			"Job expiring soon",
			fmt.Sprintf("Job %q will stop running after its end date %s", job.Name, job.EndDate),
			store.NotificationWarning, job.ID, "")
		m.postReminder(ctx, job)
	}

	m.log.Infow("Maintenance sweep complete",
		"paused", len(paused),
		"expiring", len(expiring),
		"lookahead_days", m.lookaheadDays)
	return nil
}

// postReminder posts one Slack reminder for a job nearing its end date,
// mentioning the responsible team when the job carries one. A failed post
// is logged and never stops the sweep of the remaining jobs.
func (m *Maintenance) postReminder(ctx context.Context, job *store.Job) {
	msg := fmt.Sprintf("Job %q will stop running after its end date %s", job.Name, job.EndDate)
	if job.TeamID != "" {
		msg = fmt.Sprintf("<!subteam^%s> %s", job.TeamID, msg)
	}
	if err := m.notifier.PostSlack(ctx, msg); err != nil {
		m.log.Warnw("Failed to post end-date reminder to Slack",
			"job_id", job.ID, "error", err)
	}
}
