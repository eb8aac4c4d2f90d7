package server

import (
	"net/http"
)

// HandleExecution handles GET /api/executions/{id}.
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pathParts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing execution ID")
		return
	}

	exec, err := s.execs.GetExecution(r.Context(), pathParts[0])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
