package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classpulse/classpulse-backend/internal/quiz"
)

// GetQuizHandler serves the student-safe view: no answer keys, no
// explanations.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuiz(chi.URLParam(r, "quizID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// UploadQuizHandler stores a new version of a definition. Existing attempts
// keep scoring against the version they started with.
func UploadQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.QuizDefinition
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if q.ID == "" || len(q.Questions) == 0 {
			http.Error(w, "id and questions required", http.StatusBadRequest)
			return
		}
		stored, err := store.PutQuiz(q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, stored.StudentView())
	}
}
