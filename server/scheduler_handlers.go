package server

import (
	"net/http"

	"github.com/hookwatch/hookwatch/errors"
)

// HandleSchedulerStatus handles GET /api/scheduler/status.
func (s *Server) HandleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Status())
}

// HandleSchedulerResync handles POST /api/scheduler/resync. On a non-leader
// the call succeeds with leader=false and empty counts; the periodic pass
// on the real leader covers the caller's intent.
func (s *Server) HandleSchedulerResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	counts, leader, err := s.sched.ForceResync(r.Context())
	if err != nil && !errors.Is(err, errors.ErrNotLeader) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Infow("Scheduler resync requested",
		"leader", leader,
		"scheduled", counts.Scheduled,
		"unscheduled", counts.Unscheduled,
		"paused", counts.Paused)

	writeJSON(w, http.StatusOK, ResyncResponse{Leader: leader, Counts: counts})
}
