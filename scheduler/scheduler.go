// Package scheduler is the reconciliation and execution core: it converges
// an in-process trigger engine onto the job table, executes due jobs
// against their webhook or GitHub Actions targets, and records every
// attempt as an execution row.
//
// At most one process schedules at a time. Leadership is claimed through a
// heartbeated file lock; non-leaders serve the API and keep retrying so
// they promote themselves when the leader dies.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/config"
	"github.com/hookwatch/hookwatch/errors"
	"github.com/hookwatch/hookwatch/internal/github"
	"github.com/hookwatch/hookwatch/internal/httpclient"
	"github.com/hookwatch/hookwatch/notify"
	"github.com/hookwatch/hookwatch/store"
)

// Scheduler owns the whole scheduling side of a process: leadership, the
// trigger engine, the reconciler loop, the executor, and the weekly
// maintenance sweep.
type Scheduler struct {
	cfg      config.SchedulerConfig
	jobs     *store.Store
	lock     LeaderLock
	engine   *TriggerEngine
	executor *Executor
	reconc   *Reconciler
	maint    *Maintenance
	loc      *time.Location
	log      *zap.SugaredLogger

	mu      sync.Mutex
	leader  bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status is the operator-facing snapshot returned by the status endpoint.
type Status struct {
	Enabled           bool     `json:"enabled"`
	Leader            bool     `json:"leader"`
	Timezone          string   `json:"timezone"`
	ReconcileInterval string   `json:"reconcile_interval"`
	ScheduledJobs     []string `json:"scheduled_jobs"`
}

// New wires a Scheduler from configuration and the shared stores.
// broadcaster may be nil.
func New(
	cfg *config.Config,
	jobs *store.Store,
	execs *store.ExecutionStore,
	notifs *store.NotificationStore,
	broadcaster ExecutionBroadcaster,
	log *zap.SugaredLogger,
) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid scheduler timezone %q", cfg.Scheduler.Timezone)
	}

	client := httpclient.New(cfg.Scheduler.HTTPTimeout())
	dispatcher := github.NewDispatcher(client, cfg.GitHub.BaseURL, cfg.GitHub.Token)

	var slack notify.SlackPoster
	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		slack = notify.NewSlackWebhook(client, cfg.Slack.WebhookURL)
	}
	notifier := notify.New(notifs, notify.LogEmailSender{Log: log}, slack, log)

	engine := NewTriggerEngine(loc, log)
	executor := NewExecutor(jobs, execs, notifier, client, dispatcher, engine,
		broadcaster, loc, cfg.Scheduler.Workers, cfg.Scheduler.HTTPTimeout(), log)
	reconc := NewReconciler(jobs, execs, engine, executor, notifier, loc,
		cfg.Scheduler.ReconcileInterval(), cfg.Scheduler.StuckExecutionAfter(), log)
	maint := NewMaintenance(jobs, engine, notifier, loc, cfg.Maintenance.LookaheadDays, log)

	return &Scheduler{
		cfg:      cfg.Scheduler,
		jobs:     jobs,
		lock:     NewFileLock(cfg.Scheduler.LockPath, cfg.Scheduler.LockStaleAfter(), log),
		engine:   engine,
		executor: executor,
		reconc:   reconc,
		maint:    maint,
		loc:      loc,
		log:      log,
	}, nil
}

// Start begins contending for leadership. Non-blocking; when scheduling is
// disabled in config it does nothing and the process serves the API only.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Infow("Scheduler disabled, serving API only")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.leadershipLoop(runCtx)
}

// leadershipLoop retries acquisition until it wins or the context ends.
// A standby that outlives a dead leader reclaims the stale lock here and
// promotes itself without operator action.
func (s *Scheduler) leadershipLoop(ctx context.Context) {
	defer close(s.done)

	retry := s.cfg.LockStaleAfter() / 2
	if retry < time.Second {
		retry = time.Second
	}

	for {
		acquired, err := s.lock.TryAcquire()
		if err != nil {
			s.log.Errorw("Leadership acquisition failed", "error", err)
		}
		if acquired {
			s.runAsLeader(ctx)
			return
		}

		s.log.Debugw("Leadership held elsewhere, standing by", "retry", retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func (s *Scheduler) runAsLeader(ctx context.Context) {
	s.mu.Lock()
	s.leader = true
	s.mu.Unlock()

	s.log.Infow("Acquired scheduler leadership",
		"timezone", s.cfg.Timezone,
		"reconcile_interval", s.cfg.ReconcileInterval())

	s.engine.Start()
	if err := s.maint.Register(); err != nil {
		s.log.Errorw("Failed to register maintenance sweep", "error", err)
	}

	// Blocks until ctx is cancelled. The first pass runs immediately, so a
	// fresh leader converges without waiting a full interval.
	s.reconc.Run(ctx)

	s.engine.Stop()
	s.executor.Drain()
	s.lock.Release()

	s.mu.Lock()
	s.leader = false
	s.mu.Unlock()
}

// Stop relinquishes leadership and waits for in-flight work to finish.
// Manual executions run on any process, so the executor is drained even
// when this one never led.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if running {
		cancel()
		<-done
	}
	s.executor.Drain()
	s.log.Infow("Scheduler stopped")
}

// IsLeader reports whether this process currently holds the scheduler lock.
func (s *Scheduler) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader
}

// TriggerManual starts an immediate execution of jobID. Works on any
// process, leader or not: manual runs go straight through the executor and
// never touch the trigger engine.
func (s *Scheduler) TriggerManual(ctx context.Context, jobID string) (string, error) {
	return s.executor.Run(ctx, jobID, store.TriggerManual)
}

// PushJobUpdate opportunistically converges the trigger engine for one job
// after an API mutation. Best-effort and leader-only: the periodic
// reconciler pass is the authoritative mechanism and heals anything missed
// here.
func (s *Scheduler) PushJobUpdate(ctx context.Context, jobID string) {
	if !s.IsLeader() {
		return
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.engine.Unschedule(jobID)
		}
		return
	}
	if !job.IsActive || job.ExpiredAt(time.Now(), s.loc) || !store.ValidCron(job.CronExpression) {
		s.engine.Unschedule(jobID)
		return
	}
	if _, err := s.engine.Schedule(job.ID, job.CronExpression, s.executor.triggerFunc(job.ID)); err != nil {
		s.log.Warnw("Opportunistic schedule push failed", "job_id", jobID, "error", err)
	}
}

// PushJobDelete opportunistically removes a deleted job's trigger.
func (s *Scheduler) PushJobDelete(jobID string) {
	if s.IsLeader() {
		s.engine.Unschedule(jobID)
	}
}

// ForceResync runs a reconciliation pass out of band. On a non-leader no
// pass runs and ErrNotLeader is returned so callers can distinguish "no
// work to do" from "converged"; the next periodic pass on the actual
// leader covers the caller's intent.
func (s *Scheduler) ForceResync(ctx context.Context) (Counts, bool, error) {
	if !s.IsLeader() {
		return Counts{}, false, errors.ErrNotLeader
	}
	counts, err := s.reconc.Pass(ctx)
	return counts, true, err
}

// Status returns the operator snapshot.
func (s *Scheduler) Status() Status {
	return Status{
		Enabled:           s.cfg.Enabled,
		Leader:            s.IsLeader(),
		Timezone:          s.cfg.Timezone,
		ReconcileInterval: s.cfg.ReconcileInterval().String(),
		ScheduledJobs:     s.engine.IDs(),
	}
}
