package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/errors"
)

// TriggerEngine maps job ids to live cron triggers.
//
// It is a thin wrapper around robfig/cron keyed by job id so Schedule and
// Unschedule are idempotent: rescheduling an id atomically replaces its
// trigger, unscheduling an absent id is a no-op. Those two calls are the
// only mutation primitives, which is what lets the reconciler and direct
// CRUD pushes interleave safely — both only ever converge on the same
// store-derived truth.
type TriggerEngine struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]engineEntry
	started bool
	log     *zap.SugaredLogger
}

type engineEntry struct {
	entryID cron.EntryID
	spec    string
}

// engineParser accepts the same 5-field syntax the store validates.
var engineParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewTriggerEngine creates an engine whose cron expressions are interpreted
// in the given reference location.
func NewTriggerEngine(loc *time.Location, log *zap.SugaredLogger) *TriggerEngine {
	return &TriggerEngine{
		cron: cron.New(
			cron.WithParser(engineParser),
			cron.WithLocation(loc),
			// A panic escaping one trigger must not take down the cron
			// goroutine, and with it every other trigger.
			cron.WithChain(cron.Recover(cronLogger{log})),
		),
		entries: make(map[string]engineEntry),
		log:     log,
	}
}

// cronLogger adapts the zap logger to the interface robfig/cron reports
// recovered panics through.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Infow(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Errorw(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Start begins firing triggers on the cron's own goroutine.
func (e *TriggerEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.cron.Start()
	e.started = true
	e.log.Infow("Trigger engine started", "triggers", len(e.entries))
}

// Stop halts firing and waits for in-flight callbacks to return.
func (e *TriggerEngine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	c := e.cron
	e.mu.Unlock()

	<-c.Stop().Done()
	e.log.Infow("Trigger engine stopped")
}

// Schedule registers fn to fire on spec for jobID, replacing any existing
// trigger for the same id. When the id is already registered with an
// identical spec the call is a no-op, so repeated reconciler passes cause
// no churn. Returns whether the registration changed.
func (e *TriggerEngine) Schedule(jobID, spec string, fn func()) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.entries[jobID]; ok {
		if existing.spec == spec {
			return false, nil
		}
		// Remove before add: a moment with no trigger is acceptable, a
		// moment with two is not.
		e.cron.Remove(existing.entryID)
		delete(e.entries, jobID)
	}

	entryID, err := e.cron.AddFunc(spec, fn)
	if err != nil {
		return false, errors.Wrapf(err, "failed to schedule job %s with spec %q", jobID, spec)
	}
	e.entries[jobID] = engineEntry{entryID: entryID, spec: spec}
	e.log.Debugw("Trigger scheduled", "job_id", jobID, "spec", spec)
	return true, nil
}

// Unschedule removes the trigger for jobID. No-op if absent.
func (e *TriggerEngine) Unschedule(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.entries[jobID]
	if !ok {
		return
	}
	e.cron.Remove(existing.entryID)
	delete(e.entries, jobID)
	e.log.Debugw("Trigger unscheduled", "job_id", jobID)
}

// IDs returns the sorted set of ids with live triggers.
func (e *TriggerEngine) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.entries))
	for id := range e.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Spec returns the registered cron spec for jobID, if any.
func (e *TriggerEngine) Spec(jobID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[jobID]
	return entry.spec, ok
}

// Count returns the number of live triggers.
func (e *TriggerEngine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}
