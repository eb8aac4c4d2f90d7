// Package server exposes the HTTP API: job CRUD, execution history,
// notifications, scheduler control, and a WebSocket feed of execution
// events.
package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/config"
	"github.com/hookwatch/hookwatch/scheduler"
	"github.com/hookwatch/hookwatch/store"
)

// Server is the HTTP API front end over the stores and the scheduler.
type Server struct {
	addr   string
	jobs   *store.Store
	execs  *store.ExecutionStore
	notifs *store.NotificationStore
	sched  *scheduler.Scheduler
	hub    *Hub
	log    *zap.SugaredLogger

	httpServer *http.Server
}

func New(
	cfg config.ServerConfig,
	jobs *store.Store,
	execs *store.ExecutionStore,
	notifs *store.NotificationStore,
	sched *scheduler.Scheduler,
	hub *Hub,
	log *zap.SugaredLogger,
) *Server {
	s := &Server{
		addr:   cfg.Addr,
		jobs:   jobs,
		execs:  execs,
		notifs: notifs,
		sched:  sched,
		hub:    hub,
		log:    log,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Routes(),
	}
	return s
}

// Routes builds the request mux. Exported so handler tests can drive the
// full routing layer through httptest.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/api/jobs", s.HandleJobs)                          // List/create jobs (GET/POST)
	mux.HandleFunc("/api/jobs/", s.HandleJob)                          // Job CRUD and sub-resources
	mux.HandleFunc("/api/executions/", s.HandleExecution)              // Individual execution (GET)
	mux.HandleFunc("/api/notifications", s.HandleNotifications)        // List notifications (GET)
	mux.HandleFunc("/api/notifications/", s.HandleNotificationAction)  // Mark read (POST .../read)
	mux.HandleFunc("/api/scheduler/status", s.HandleSchedulerStatus)   // Operator snapshot (GET)
	mux.HandleFunc("/api/scheduler/resync", s.HandleSchedulerResync)   // Out-of-band pass (POST)
	return mux
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Infow("HTTP server listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// HandleHealth reports liveness plus a few operator counters.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"leader":     s.sched.IsLeader(),
		"ws_clients": s.hub.ClientCount(),
	})
}
