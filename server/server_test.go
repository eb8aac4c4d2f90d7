package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookwatch/hookwatch/config"
	hwtest "github.com/hookwatch/hookwatch/internal/testing"
	"github.com/hookwatch/hookwatch/logger"
	"github.com/hookwatch/hookwatch/scheduler"
	"github.com/hookwatch/hookwatch/store"
)

type serverFixture struct {
	srv    *Server
	mux    *http.ServeMux
	jobs   *store.Store
	execs  *store.ExecutionStore
	notifs *store.NotificationStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	db := hwtest.CreateTestDB(t)
	jobs := store.NewStore(db)
	execs := store.NewExecutionStore(db)
	notifs := store.NewNotificationStore(db)

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)
	cfg.Scheduler.Enabled = false
	cfg.Scheduler.LockPath = filepath.Join(t.TempDir(), "leader.lock")

	log := logger.Nop()
	hub := NewHub(log)

	sched, err := scheduler.New(cfg, jobs, execs, notifs, hub, log)
	require.NoError(t, err)

	srv := New(cfg.Server, jobs, execs, notifs, sched, hub, log)
	return &serverFixture{
		srv:    srv,
		mux:    srv.Routes(),
		jobs:   jobs,
		execs:  execs,
		notifs: notifs,
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func validCreateRequest() CreateJobRequest {
	return CreateJobRequest{
		Name:           "nightly-report",
		CronExpression: "0 2 * * *",
		EndDate:        "2027-12-31",
		TargetURL:      "https://hooks.invalid/report",
		OwnerID:        "user-1",
	}
}

func TestCreateJobEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[JobResponse](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "nightly-report", created.Name)
	assert.True(t, created.IsActive)
}

func TestCreateJobEndpointRejectsInvalid(t *testing.T) {
	f := newServerFixture(t)

	bad := validCreateRequest()
	bad.CronExpression = "garbage"
	rec := f.do(t, http.MethodPost, "/api/jobs", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noTarget := validCreateRequest()
	noTarget.TargetURL = ""
	rec = f.do(t, http.MethodPost, "/api/jobs", noTarget)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	both := validCreateRequest()
	both.GitHubOwner = "acme"
	both.GitHubRepo = "deploy"
	both.GitHubWorkflow = "release.yml"
	rec = f.do(t, http.MethodPost, "/api/jobs", both)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobCRUDEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[JobResponse](t, rec)

	rec = f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListJobsResponse](t, rec)
	assert.Equal(t, 1, list.Count)

	newName := "renamed"
	rec = f.do(t, http.MethodPut, "/api/jobs/"+created.ID, UpdateJobRequest{Name: &newName})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[JobResponse](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, created.CronExpression, updated.CronExpression)

	rec = f.do(t, http.MethodDelete, "/api/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateJobValidatesResult(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[JobResponse](t, rec)

	// clearing the only target must fail validation
	empty := ""
	rec = f.do(t, http.MethodPut, "/api/jobs/"+created.ID, UpdateJobRequest{TargetURL: &empty})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseResumeEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[JobResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paused := decode[JobResponse](t, rec)
	assert.False(t, paused.IsActive)

	rec = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resumed := decode[JobResponse](t, rec)
	assert.True(t, resumed.IsActive)
}

func TestTriggerEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[JobResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/trigger", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	trig := decode[TriggerResponse](t, rec)
	assert.NotEmpty(t, trig.ExecutionID)
	assert.Equal(t, store.ExecutionStatusRunning, trig.Status)

	// triggering a paused job is rejected with no execution record
	rec = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/trigger", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerUnknownJob(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/jobs/no-such-id/trigger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobExecutionsEndpoint(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[JobResponse](t, rec)

	_, err := f.execs.CreateExecution(ctx, created.ID, store.TriggerScheduled)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/jobs/"+created.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListExecutionsResponse](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = f.do(t, http.MethodGet, "/api/jobs/no-such-id/executions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs/"+created.ID+"/executions?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecutionEndpoint(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/jobs", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[JobResponse](t, rec)

	exec, err := f.execs.CreateExecution(ctx, created.ID, store.TriggerManual)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[store.Execution](t, rec)
	assert.Equal(t, exec.ID, got.ID)

	rec = f.do(t, http.MethodGet, "/api/executions/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()

	n := &store.Notification{
		UserID:  "user-1",
		Title:   "Job failed",
		Message: "boom",
		Type:    store.NotificationError,
	}
	require.NoError(t, f.notifs.CreateNotification(ctx, n))

	rec := f.do(t, http.MethodGet, "/api/notifications?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListNotificationsResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.False(t, list.Notifications[0].Read)

	rec = f.do(t, http.MethodPost, "/api/notifications/"+n.ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/notifications?user_id=user-1&unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unread := decode[ListNotificationsResponse](t, rec)
	assert.Equal(t, 0, unread.Count)

	rec = f.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[scheduler.Status](t, rec)
	assert.False(t, status.Enabled)
	assert.False(t, status.Leader)

	// resync on a non-leader is a silent no-op, not an error
	rec = f.do(t, http.MethodPost, "/api/scheduler/resync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resync := decode[ResyncResponse](t, rec)
	assert.False(t, resync.Leader)
	assert.Equal(t, scheduler.Counts{}, resync.Counts)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/jobs", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/scheduler/resync", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
