package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/classpulse/classpulse-backend/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeErr maps engine sentinels to status codes. Business-rule violations
// are structured 4xx; anything unrecognized is an infrastructure failure.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, quiz.ErrAttemptNotFound):
		writeJSON(w, http.StatusNotFound, errBody{"not_found", err.Error()})
	case errors.Is(err, quiz.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errBody{"forbidden", err.Error()})
	case errors.Is(err, quiz.ErrNotEligible):
		writeJSON(w, http.StatusConflict, errBody{"not_eligible", err.Error()})
	case errors.Is(err, quiz.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errBody{"invalid_state", err.Error()})
	case errors.Is(err, quiz.ErrAlreadyFinalized):
		writeJSON(w, http.StatusConflict, errBody{"already_finalized",
			"your attempt already ended; fetch the result to see your score"})
	case errors.Is(err, quiz.ErrInvalidEntry):
		writeJSON(w, http.StatusBadRequest, errBody{"invalid_entry", err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errBody{"internal", "internal error"})
	}
}
