package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hookwatch/hookwatch/errors"
	"github.com/hookwatch/hookwatch/internal/github"
	"github.com/hookwatch/hookwatch/internal/httpclient"
	"github.com/hookwatch/hookwatch/notify"
	"github.com/hookwatch/hookwatch/store"
)

// ExecutionBroadcaster pushes execution lifecycle events to connected UI
// clients. Defined here so the scheduler does not import the server.
type ExecutionBroadcaster interface {
	BroadcastExecutionStarted(jobID, executionID, triggerType string)
	BroadcastExecutionFinished(jobID, executionID, status string, responseStatus int, durationSeconds float64)
}

// outputLimit bounds how much target response body is kept on the
// execution record.
const outputLimit = 2048

// Executor performs one execution attempt per invocation: re-fetch the job,
// create the audit row, make exactly one outbound call, record the outcome,
// raise notifications. No retries; a failed attempt is terminal for that
// due time.
type Executor struct {
	jobs        *store.Store
	execs       *store.ExecutionStore
	notifier    *notify.Notifier
	client      *httpclient.SaferClient
	dispatcher  *github.Dispatcher
	engine      *TriggerEngine
	broadcaster ExecutionBroadcaster
	loc         *time.Location
	httpTimeout time.Duration
	log         *zap.SugaredLogger

	// sem bounds concurrent outbound calls across all jobs.
	sem *semaphore.Weighted

	// inflight implements the per-job overlap guard: while a job's previous
	// run is in flight, a new due occurrence is skipped, not queued.
	mu       sync.Mutex
	inflight map[string]struct{}

	wg sync.WaitGroup
}

// NewExecutor creates an executor. broadcaster may be nil.
func NewExecutor(
	jobs *store.Store,
	execs *store.ExecutionStore,
	notifier *notify.Notifier,
	client *httpclient.SaferClient,
	dispatcher *github.Dispatcher,
	engine *TriggerEngine,
	broadcaster ExecutionBroadcaster,
	loc *time.Location,
	workers int,
	httpTimeout time.Duration,
	log *zap.SugaredLogger,
) *Executor {
	if workers <= 0 {
		workers = 8
	}
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	return &Executor{
		jobs:        jobs,
		execs:       execs,
		notifier:    notifier,
		client:      client,
		dispatcher:  dispatcher,
		engine:      engine,
		broadcaster: broadcaster,
		loc:         loc,
		httpTimeout: httpTimeout,
		log:         log,
		sem:         semaphore.NewWeighted(int64(workers)),
		inflight:    make(map[string]struct{}),
	}
}

// Run begins one execution attempt and returns the created execution id.
// The outbound call and terminal transition happen asynchronously; callers
// observe completion through the execution record.
//
// For scheduled triggers every abort (missing job, inactive, expired,
// overlap) is a logged no-op returning an empty id: nobody is waiting on a
// scheduled firing and one job's state must never disturb its siblings.
// For manual triggers the same conditions surface as errors, since they
// occur before any execution record exists.
func (x *Executor) Run(ctx context.Context, jobID, trigger string) (string, error) {
	execID, err := x.begin(ctx, jobID, trigger)
	if err != nil && trigger == store.TriggerScheduled {
		x.log.Infow("Scheduled firing skipped",
			"job_id", jobID,
			"reason", err.Error())
		return "", nil
	}
	return execID, err
}

func (x *Executor) begin(ctx context.Context, jobID, trigger string) (string, error) {
	// Overlap guard first: don't even touch the store if the previous run
	// for this job has not finished.
	x.mu.Lock()
	if _, running := x.inflight[jobID]; running {
		x.mu.Unlock()
		return "", errors.Wrap(errors.ErrConflict, "previous execution still in flight for job "+jobID)
	}
	x.inflight[jobID] = struct{}{}
	x.mu.Unlock()

	started := false
	defer func() {
		// Releases the slot on error and on panic; on success perform()
		// owns it until the attempt completes.
		if !started {
			x.clearInflight(jobID)
		}
	}()

	execID, err := x.beginLocked(ctx, jobID, trigger)
	started = err == nil
	return execID, err
}

// beginLocked runs steps 1-3 (fresh fetch, expiry cutoff, audit row) with
// the inflight slot already reserved. The caller releases the slot on
// error; on success perform() releases it when the attempt completes.
func (x *Executor) beginLocked(ctx context.Context, jobID, trigger string) (string, error) {
	// Always re-fetch: trigger registrations can outlive job mutations
	// between reconciler passes.
	job, err := x.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !job.IsActive {
		return "", errors.Wrap(errors.ErrJobInactive, "job "+jobID+" is disabled")
	}
	if job.ExpiredAt(time.Now(), x.loc) {
		x.autoPause(ctx, job)
		return "", errors.Wrap(errors.ErrJobInactive, "job "+jobID+" passed its end date")
	}

	// The audit row is committed before the outbound call so a crash
	// mid-call leaves an observable 'running' row.
	exec, err := x.execs.CreateExecution(ctx, job.ID, trigger)
	if err != nil {
		return "", err
	}

	if x.broadcaster != nil {
		x.broadcaster.BroadcastExecutionStarted(job.ID, exec.ID, trigger)
	}

	x.wg.Add(1)
	go x.perform(job, exec)

	return exec.ID, nil
}

// perform makes the single outbound call and records the terminal state.
// It runs detached from the triggering request/firing so a slow target can
// never block the trigger engine or an API response.
func (x *Executor) perform(job *store.Job, exec *store.Execution) {
	defer x.wg.Done()
	defer x.clearInflight(job.ID)
	defer func() {
		if r := recover(); r != nil {
			x.log.Errorw("Panic in executor", "job_id", job.ID, "execution_id", exec.ID, "panic", r)
		}
	}()

	ctx := context.Background()
	if err := x.sem.Acquire(ctx, 1); err != nil {
		x.completeFailed(ctx, job, exec, store.Outcome{Error: "executor pool unavailable: " + err.Error()})
		return
	}
	defer x.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, x.httpTimeout)
	status, output, err := x.callTarget(callCtx, job)
	cancel()

	outcome := store.Outcome{Output: output}
	if status != 0 {
		statusCopy := status
		outcome.ResponseStatus = &statusCopy
	}

	if err != nil {
		outcome.Error = err.Error()
		x.completeFailed(ctx, job, exec, outcome)
		return
	}
	x.completeSuccess(ctx, job, exec, outcome)
}

// callTarget makes exactly one outbound call. Which path runs is decided by
// the job's target mode, which validation guarantees is unambiguous.
func (x *Executor) callTarget(ctx context.Context, job *store.Job) (status int, output string, err error) {
	if job.HasGitHubTarget() {
		status, err = x.dispatcher.Dispatch(ctx, github.DispatchRequest{
			Owner:    job.GitHubOwner,
			Repo:     job.GitHubRepo,
			Workflow: job.GitHubWorkflow,
			Inputs: map[string]string{
				"job_id":       job.ID,
				"job_name":     job.Name,
				"triggered_by": "hookwatch",
			},
		})
		if err != nil {
			return status, "", err
		}
		return status, fmt.Sprintf("workflow %s/%s/%s dispatched", job.GitHubOwner, job.GitHubRepo, job.GitHubWorkflow), nil
	}

	payload, merr := json.Marshal(map[string]string{
		"job_id":   job.ID,
		"job_name": job.Name,
	})
	if merr != nil {
		return 0, "", errors.Wrap(merr, "failed to marshal webhook payload")
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, job.TargetURL, bytes.NewReader(payload))
	if rerr != nil {
		return 0, "", errors.Wrap(rerr, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, derr := x.client.Do(req)
	if derr != nil {
		return 0, "", errors.Wrap(derr, "webhook call failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, outputLimit))
	output = strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, output, errors.Newf("webhook returned %d", resp.StatusCode)
	}
	return resp.StatusCode, output, nil
}

func (x *Executor) completeSuccess(ctx context.Context, job *store.Job, exec *store.Execution, outcome store.Outcome) {
	if err := x.execs.CompleteExecution(ctx, exec.ID, store.ExecutionStatusSuccess, outcome); err != nil {
		x.log.Errorw("Failed to record execution success", "execution_id", exec.ID, "error", err)
	}

	x.log.Infow("Execution succeeded",
		"job_id", job.ID,
		"execution_id", exec.ID,
		"trigger", exec.Trigger,
		"response_status", derefInt(outcome.ResponseStatus))

	if job.NotifyOnSuccess {
		x.notifier.Notify(ctx, job.OwnerID,
			"Job succeeded",
			fmt.Sprintf("Job %q completed successfully", job.Name),
			store.NotificationSuccess, job.ID, exec.ID)
		if len(job.NotifyEmails) > 0 {
			x.notifier.SendEmail(ctx, job.NotifyEmails,
				fmt.Sprintf("[hookwatch] Job %q succeeded", job.Name),
				fmt.Sprintf("Job %q (execution %s) completed successfully.", job.Name, exec.ID))
		}
	}

	x.broadcastFinished(job.ID, exec.ID, store.ExecutionStatusSuccess, outcome, exec.StartedAt)
}

func (x *Executor) completeFailed(ctx context.Context, job *store.Job, exec *store.Execution, outcome store.Outcome) {
	if err := x.execs.CompleteExecution(ctx, exec.ID, store.ExecutionStatusFailed, outcome); err != nil {
		x.log.Errorw("Failed to record execution failure", "execution_id", exec.ID, "error", err)
	}

	x.log.Warnw("Execution failed",
		"job_id", job.ID,
		"execution_id", exec.ID,
		"trigger", exec.Trigger,
		"response_status", derefInt(outcome.ResponseStatus),
		"error", outcome.Error)

	// In-app error notification always; failure email only if opted in,
	// independent of the success-notification toggle.
	x.notifier.Notify(ctx, job.OwnerID,
		"Job failed",
		fmt.Sprintf("Job %q failed: %s", job.Name, outcome.Error),
		store.NotificationError, job.ID, exec.ID)

	if job.EmailOnFailure && len(job.NotifyEmails) > 0 {
		x.notifier.SendEmail(ctx, job.NotifyEmails,
			fmt.Sprintf("[hookwatch] Job %q failed", job.Name),
			fmt.Sprintf("Job %q (execution %s) failed: %s", job.Name, exec.ID, outcome.Error))
	}

	x.broadcastFinished(job.ID, exec.ID, store.ExecutionStatusFailed, outcome, exec.StartedAt)
}

func (x *Executor) broadcastFinished(jobID, execID, status string, outcome store.Outcome, startedAt time.Time) {
	if x.broadcaster == nil {
		return
	}
	x.broadcaster.BroadcastExecutionFinished(jobID, execID, status,
		derefInt(outcome.ResponseStatus), time.Since(startedAt).Seconds())
}

// autoPause disables a job whose end_date has passed, removes its trigger,
// and warns the owner. Called from the executor's pre-flight check; the
// reconciler and maintenance sweep use the same helper.
func (x *Executor) autoPause(ctx context.Context, job *store.Job) {
	autoPauseExpired(ctx, x.jobs, x.engine, x.notifier, job, x.log)
}

// triggerFunc builds the closure registered with the trigger engine for a
// scheduled job.
func (x *Executor) triggerFunc(jobID string) func() {
	return func() {
		// One job's firing must never reach the cron goroutine as a panic.
		defer func() {
			if r := recover(); r != nil {
				x.log.Errorw("Scheduled trigger panicked", "job_id", jobID, "panic", r)
			}
		}()
		if _, err := x.Run(context.Background(), jobID, store.TriggerScheduled); err != nil {
			x.log.Errorw("Scheduled execution failed to start", "job_id", jobID, "error", err)
		}
	}
}

// Drain waits for all in-flight executions to finish.
func (x *Executor) Drain() {
	x.wg.Wait()
}

func (x *Executor) clearInflight(jobID string) {
	x.mu.Lock()
	delete(x.inflight, jobID)
	x.mu.Unlock()
}

// autoPauseExpired is the single auto-pause path shared by the executor,
// reconciler, and maintenance sweep.
func autoPauseExpired(
	ctx context.Context,
	jobs *store.Store,
	engine *TriggerEngine,
	notifier *notify.Notifier,
	job *store.Job,
	log *zap.SugaredLogger,
) {
	if err := jobs.SetJobActive(ctx, job.ID, false); err != nil {
		log.Errorw("Failed to auto-pause expired job", "job_id", job.ID, "error", err)
		return
	}
	if engine != nil {
		engine.Unschedule(job.ID)
	}
	log.Infow("Job auto-paused (end date passed)",
		"job_id", job.ID,
		"name", job.Name,
		"end_date", job.EndDate)

	notifier.Notify(ctx, job.OwnerID,
		"Job auto-paused",
		fmt.Sprintf("Job %q was paused automatically because its end date (%s) has passed", job.Name, job.EndDate),
		store.NotificationWarning, job.ID, "")
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
