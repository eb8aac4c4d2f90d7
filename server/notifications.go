package server

import (
	"net/http"
)

// HandleNotifications handles GET /api/notifications?user_id=...&unread=true.
func (s *Server) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifs, err := s.notifs.ListNotifications(r.Context(), userID, unreadOnly)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListNotificationsResponse{
		Notifications: notifs,
		Count:         len(notifs),
	})
}

// HandleNotificationAction handles POST /api/notifications/{id}/read.
func (s *Server) HandleNotificationAction(w http.ResponseWriter, r *http.Request) {
	pathParts := extractPathParts(r.URL.Path, "/api/notifications/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing notification ID")
		return
	}
	notifID := pathParts[0]

	if len(pathParts) < 2 || pathParts[1] != "read" {
		writeError(w, http.StatusNotFound, "Unknown notification action")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.notifs.MarkNotificationRead(r.Context(), notifID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read", "id": notifID})
}
