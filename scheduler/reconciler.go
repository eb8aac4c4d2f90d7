package scheduler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/notify"
	"github.com/hookwatch/hookwatch/store"
)

// maintenancePrefix marks engine entries that belong to built-in sweeps
// rather than user jobs. The reconciler never treats them as orphans.
const maintenancePrefix = "maintenance:"

// Counts summarizes one reconciliation pass.
type Counts struct {
	Scheduled   int `json:"scheduled"`
	Unscheduled int `json:"unscheduled"`
	Paused      int `json:"paused"`
	Failed      int `json:"failed"`
	Stuck       int `json:"stuck"`
}

// Reconciler periodically converges the trigger engine onto the job table.
// The job table is the source of truth; engine registrations are a
// disposable projection of it. Any drift, whatever its cause, heals within
// one interval.
type Reconciler struct {
	jobs     *store.Store
	execs    *store.ExecutionStore
	engine   *TriggerEngine
	executor *Executor
	notifier *notify.Notifier
	loc      *time.Location
	interval time.Duration
	stuckAge time.Duration
	log      *zap.SugaredLogger
}

func NewReconciler(
	jobs *store.Store,
	execs *store.ExecutionStore,
	engine *TriggerEngine,
	executor *Executor,
	notifier *notify.Notifier,
	loc *time.Location,
	interval time.Duration,
	stuckAge time.Duration,
	log *zap.SugaredLogger,
) *Reconciler {
	return &Reconciler{
		jobs:     jobs,
		execs:    execs,
		engine:   engine,
		executor: executor,
		notifier: notifier,
		loc:      loc,
		interval: interval,
		stuckAge: stuckAge,
		log:      log,
	}
}

// Run executes an immediate pass, then one per interval until ctx is done.
// A failed pass is logged and retried at the next tick; the loop itself
// never exits on error.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Infow("Reconciler started", "interval", r.interval)

	if _, err := r.Pass(ctx); err != nil {
		r.log.Errorw("Reconciliation pass failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("Reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Pass(ctx); err != nil {
				r.log.Errorw("Reconciliation pass failed", "error", err)
			}
		}
	}
}

// Pass performs one full reconciliation: auto-pause expired jobs, ensure
// every active job is registered with its current expression, drop orphaned
// registrations, and fail stuck executions. Per-job problems are isolated;
// one bad row never aborts the pass.
func (r *Reconciler) Pass(ctx context.Context) (Counts, error) {
	var counts Counts

	jobs, err := r.jobs.ListJobs(ctx)
	if err != nil {
		return counts, err
	}

	now := time.Now()
	wanted := make(map[string]struct{}, len(jobs))

	for _, job := range jobs {
		if !job.IsActive {
			continue
		}

		if job.ExpiredAt(now, r.loc) {
			autoPauseExpired(ctx, r.jobs, r.engine, r.notifier, job, r.log)
			counts.Paused++
			continue
		}

		if !store.ValidCron(job.CronExpression) {
			// Validation rejects these at write time; a row can still go
			// bad through direct DB edits. Leave it alone and report it.
			r.log.Errorw("Job has unparseable cron expression, skipping",
				"job_id", job.ID,
				"cron", job.CronExpression)
			counts.Failed++
			continue
		}

		wanted[job.ID] = struct{}{}

		changed, err := r.engine.Schedule(job.ID, job.CronExpression, r.executor.triggerFunc(job.ID))
		if err != nil {
			r.log.Errorw("Failed to schedule job", "job_id", job.ID, "error", err)
			counts.Failed++
			continue
		}
		if changed {
			counts.Scheduled++
		}
	}

	// Orphan sweep: anything registered that no active job accounts for.
	for _, id := range r.engine.IDs() {
		if strings.HasPrefix(id, maintenancePrefix) {
			continue
		}
		if _, ok := wanted[id]; !ok {
			r.engine.Unschedule(id)
			counts.Unscheduled++
			r.log.Infow("Unscheduled orphaned trigger", "job_id", id)
		}
	}

	if r.stuckAge > 0 {
		stuck, err := r.execs.FailStuckExecutions(ctx, now.Add(-r.stuckAge))
		if err != nil {
			r.log.Errorw("Stuck-execution sweep failed", "error", err)
		} else {
			counts.Stuck = len(stuck)
			for _, id := range stuck {
				r.log.Warnw("Marked stuck execution failed", "execution_id", id)
			}
		}
	}

	if counts.Scheduled > 0 || counts.Unscheduled > 0 || counts.Paused > 0 || counts.Stuck > 0 {
		r.log.Infow("Reconciliation pass complete",
			"scheduled", counts.Scheduled,
			"unscheduled", counts.Unscheduled,
			"paused", counts.Paused,
			"failed", counts.Failed,
			"stuck", counts.Stuck)
	}

	return counts, nil
}
