package server

import (
	"net/http"
	"strconv"

	"github.com/hookwatch/hookwatch/store"
)

// HandleJobs handles requests to /api/jobs
// GET: List all jobs
// POST: Create a new job
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListJobs(w, r)
	case http.MethodPost:
		s.handleCreateJob(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleJob handles requests to /api/jobs/{id} and sub-resources:
// GET/PUT/DELETE on the job itself, POST {id}/trigger, POST {id}/pause,
// POST {id}/resume, GET {id}/executions.
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	pathParts := extractPathParts(r.URL.Path, "/api/jobs/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	jobID := pathParts[0]

	if len(pathParts) > 1 && pathParts[1] != "" {
		s.handleJobSubresource(w, r, jobID, pathParts[1])
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetJob(w, r, jobID)
	case http.MethodPut:
		s.handleUpdateJob(w, r, jobID)
	case http.MethodDelete:
		s.handleDeleteJob(w, r, jobID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleJobSubresource(w http.ResponseWriter, r *http.Request, jobID, action string) {
	switch action {
	case "executions":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleJobExecutions(w, r, jobID)
	case "trigger":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleTriggerJob(w, r, jobID)
	case "pause":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleSetJobActive(w, r, jobID, false)
	case "resume":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleSetJobActive(w, r, jobID, true)
	default:
		writeError(w, http.StatusNotFound, "Unknown job sub-resource: "+action)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	response := ListJobsResponse{
		Jobs:  make([]JobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toJobResponse(job))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	job := &store.Job{
		Name:            req.Name,
		CronExpression:  req.CronExpression,
		EndDate:         req.EndDate,
		TargetURL:       req.TargetURL,
		GitHubOwner:     req.GitHubOwner,
		GitHubRepo:      req.GitHubRepo,
		GitHubWorkflow:  req.GitHubWorkflow,
		IsActive:        active,
		OwnerID:         req.OwnerID,
		CategoryID:      req.CategoryID,
		TeamID:          req.TeamID,
		NotifyOnSuccess: req.NotifyOnSuccess,
		EmailOnFailure:  req.EmailOnFailure,
		NotifyEmails:    req.NotifyEmails,
	}

	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Infow("Job created",
		"job_id", shortID(job.ID),
		"name", job.Name,
		"cron", job.CronExpression)

	s.sched.PushJobUpdate(r.Context(), job.ID)
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request, jobID string) {
	var req UpdateJobRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	applyJobUpdate(job, &req)

	if err := s.jobs.UpdateJob(r.Context(), job); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Infow("Job updated", "job_id", shortID(jobID))

	s.sched.PushJobUpdate(r.Context(), jobID)
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func applyJobUpdate(job *store.Job, req *UpdateJobRequest) {
	if req.Name != nil {
		job.Name = *req.Name
	}
	if req.CronExpression != nil {
		job.CronExpression = *req.CronExpression
	}
	if req.EndDate != nil {
		job.EndDate = *req.EndDate
	}
	if req.TargetURL != nil {
		job.TargetURL = *req.TargetURL
	}
	if req.GitHubOwner != nil {
		job.GitHubOwner = *req.GitHubOwner
	}
	if req.GitHubRepo != nil {
		job.GitHubRepo = *req.GitHubRepo
	}
	if req.GitHubWorkflow != nil {
		job.GitHubWorkflow = *req.GitHubWorkflow
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}
	if req.CategoryID != nil {
		job.CategoryID = *req.CategoryID
	}
	if req.TeamID != nil {
		job.TeamID = *req.TeamID
	}
	if req.NotifyOnSuccess != nil {
		job.NotifyOnSuccess = *req.NotifyOnSuccess
	}
	if req.EmailOnFailure != nil {
		job.EmailOnFailure = *req.EmailOnFailure
	}
	if req.NotifyEmails != nil {
		job.NotifyEmails = *req.NotifyEmails
	}
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if err := s.jobs.DeleteJob(r.Context(), jobID); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Infow("Job deleted", "job_id", shortID(jobID))

	s.sched.PushJobDelete(jobID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": jobID})
}

func (s *Server) handleSetJobActive(w http.ResponseWriter, r *http.Request, jobID string, active bool) {
	if err := s.jobs.SetJobActive(r.Context(), jobID, active); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Infow("Job active state changed", "job_id", shortID(jobID), "is_active", active)

	s.sched.PushJobUpdate(r.Context(), jobID)

	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// handleTriggerJob starts a manual execution. The response carries the
// execution id while the outbound call proceeds in the background.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request, jobID string) {
	execID, err := s.sched.TriggerManual(r.Context(), jobID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Infow("Manual trigger accepted",
		"job_id", shortID(jobID),
		"execution_id", shortID(execID))

	writeJSON(w, http.StatusAccepted, TriggerResponse{
		ExecutionID: execID,
		Status:      store.ExecutionStatusRunning,
	})
}

func (s *Server) handleJobExecutions(w http.ResponseWriter, r *http.Request, jobID string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	// 404 for unknown jobs rather than an empty history.
	if _, err := s.jobs.GetJob(r.Context(), jobID); err != nil {
		writeStoreError(w, err)
		return
	}

	execs, err := s.execs.ListExecutions(r.Context(), jobID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListExecutionsResponse{
		Executions: execs,
		Count:      len(execs),
	})
}
