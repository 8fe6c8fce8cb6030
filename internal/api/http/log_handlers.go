package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classpulse/classpulse-backend/internal/quiz"
	"github.com/classpulse/classpulse-backend/internal/rbac"
)

// LogActionHandler appends one suspicious-activity entry from the student's
// own session.
func LogActionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e quiz.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		err := svc.LogAction(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), e)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetLogsHandler returns the full ordered log. Mounted behind
// attempt:logs-view, so only staff reach it.
func GetLogsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.GetLogs(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		if entries == nil {
			entries = []quiz.LogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
