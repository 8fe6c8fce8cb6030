package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/classpulse/classpulse-backend/internal/quiz"
	"github.com/classpulse/classpulse-backend/internal/rbac"
)

// CheckEligibilityHandler answers "may I take this quiz", including the
// existing attempt when one is resumable.
func CheckEligibilityHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		elig, err := svc.CheckEligibility(r.Context(), chi.URLParam(r, "quizID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, elig)
	}
}

// StartOrResumeHandler is idempotent: an in-progress attempt comes back
// unchanged instead of a second one being created.
func StartOrResumeHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.StartOrResume(r.Context(), chi.URLParam(r, "quizID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ResumeHandler returns the caller's in-progress attempt with saved answers
// and position, for clients rebuilding state after a reconnect.
func ResumeHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Resume(r.Context(), chi.URLParam(r, "quizID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func SaveProgressHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers      map[string]string `json:"answers"`
			CurrentIndex int               `json:"current_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a, err := svc.SaveProgress(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), req.Answers, req.CurrentIndex)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func SubmitHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers          map[string]string `json:"answers"`
			TimeTakenMinutes int               `json:"time_taken_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		res, err := svc.Submit(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), req.Answers, req.TimeTakenMinutes)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GetResultHandler serves the scored breakdown of a terminal attempt to its
// owner, or to staff with attempt:view-all.
func GetResultHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetResult(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), rbac.Staff(r, "attempt:view-all"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ScheduleWarningHandler arms one advisory "time remaining" push for the
// caller's attempt.
func ScheduleWarningHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RemainingMinutes int `json:"remaining_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RemainingMinutes <= 0 {
			http.Error(w, "remaining_minutes required", http.StatusBadRequest)
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		err := svc.ScheduleWarning(r.Context(), chi.URLParam(r, "attemptID"), sub,
			time.Duration(req.RemainingMinutes)*time.Minute)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
