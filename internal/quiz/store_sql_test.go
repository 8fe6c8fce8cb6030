package quiz_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/classpulse/classpulse-backend/internal/db"
	"github.com/classpulse/classpulse-backend/internal/quiz"
)

var memDBSeq atomic.Int64

// newSQLiteStore opens a fresh in-memory database with the schema applied.
func newSQLiteStore(t *testing.T) *quiz.SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", memDBSeq.Add(1))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return quiz.NewSQLStore(dbh, "sqlite")
}

func putQuiz(t *testing.T, st *quiz.SQLStore, q quiz.QuizDefinition) quiz.QuizDefinition {
	t.Helper()
	out, err := st.PutQuiz(q)
	if err != nil {
		t.Fatalf("put quiz: %v", err)
	}
	return out
}

func TestSQLStore_QuizVersioning(t *testing.T) {
	st := newSQLiteStore(t)
	base := quiz.QuizDefinition{
		ID:    "quiz-1",
		Title: "Fractions",
		Questions: []quiz.Question{
			{ID: "q1", Prompt: "What is 2+2?", CorrectAnswer: "4", Explanation: "basic addition", Points: 3},
		},
		TimeLimit: 10 * time.Minute,
	}

	v1 := putQuiz(t, st, base)
	if v1.Version != 1 {
		t.Fatalf("first upload version = %d, want 1", v1.Version)
	}

	base.Title = "Fractions (revised)"
	base.Questions[0].CorrectAnswer = "four"
	v2 := putQuiz(t, st, base)
	if v2.Version != 2 {
		t.Fatalf("second upload version = %d, want 2", v2.Version)
	}

	// Latest wins for new attempts; the pinned version stays readable.
	latest, err := st.GetQuizFull(context.Background(), "quiz-1", 0)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Version != 2 || latest.Title != "Fractions (revised)" {
		t.Fatalf("latest = v%d %q", latest.Version, latest.Title)
	}
	pinned, err := st.GetQuizFull(context.Background(), "quiz-1", 1)
	if err != nil {
		t.Fatalf("get pinned: %v", err)
	}
	if pinned.Questions[0].CorrectAnswer != "4" {
		t.Fatalf("pinned version mutated: %+v", pinned.Questions[0])
	}
	if pinned.TimeLimit != 10*time.Minute {
		t.Fatalf("time limit round-trip = %v", pinned.TimeLimit)
	}

	// Student view must not leak the key.
	sv, err := st.GetQuiz("quiz-1")
	if err != nil {
		t.Fatalf("student view: %v", err)
	}
	if sv.Questions[0].CorrectAnswer != "" || sv.Questions[0].Explanation != "" {
		t.Fatalf("student view leaks answers: %+v", sv.Questions[0])
	}

	if _, err := st.GetQuizFull(context.Background(), "missing", 0); !errors.Is(err, quiz.ErrQuizNotFound) {
		t.Fatalf("missing quiz err = %v, want ErrQuizNotFound", err)
	}
}

func TestSQLStore_AttemptRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	started := time.Now().UTC().Truncate(time.Second)
	expires := started.Add(10 * time.Minute)

	if err := st.CreateAttempt(quiz.Attempt{
		ID: "a1", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: started, ExpiresAt: &expires,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetAttempt("a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartedAt.Equal(started) || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("timestamps = started %v expires %v", got.StartedAt, got.ExpiresAt)
	}
	if got.Answers == nil || len(got.Answers) != 0 {
		t.Fatalf("fresh answers = %v", got.Answers)
	}

	if _, err := st.SaveProgress("a1", map[string]string{"q1": "4"}, 1); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	saved, err := st.SaveProgress("a1", map[string]string{"q2": "Paris"}, 2)
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if saved.Answers["q1"] != "4" || saved.Answers["q2"] != "Paris" || saved.CurrentIndex != 2 {
		t.Fatalf("merged progress = %+v", saved)
	}

	live, err := st.ListInProgress(context.Background())
	if err != nil {
		t.Fatalf("list in progress: %v", err)
	}
	if len(live) != 1 || live[0].ID != "a1" {
		t.Fatalf("in-progress list = %+v", live)
	}

	if _, err := st.GetAttempt("missing"); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("missing attempt err = %v, want ErrAttemptNotFound", err)
	}
}

func TestSQLStore_RejectsSecondLiveAttempt(t *testing.T) {
	st := newSQLiteStore(t)
	now := time.Now().UTC()
	if err := st.CreateAttempt(quiz.Attempt{
		ID: "a1", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: now,
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := st.CreateAttempt(quiz.Attempt{
		ID: "a2", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: now,
	})
	if !errors.Is(err, quiz.ErrDuplicateAttempt) {
		t.Fatalf("second live create err = %v, want ErrDuplicateAttempt", err)
	}

	// Once the live attempt is terminal the pair may start again.
	if _, err := st.FinalizeAttempt("a1", quiz.StatusExpired, now, nil, 0, 0, 0, "Needs Improvement"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := st.CreateAttempt(quiz.Attempt{
		ID: "a2", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: now,
	}); err != nil {
		t.Fatalf("create after finalize: %v", err)
	}
}

func TestSQLStore_FinalizeCAS(t *testing.T) {
	st := newSQLiteStore(t)
	started := time.Now().UTC()
	_ = st.CreateAttempt(quiz.Attempt{
		ID: "a1", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: started,
		Answers: map[string]string{"q1": "4"},
	})

	done := started.Add(time.Minute).Truncate(time.Second)
	// nil answers means "score what was autosaved": the stored blob survives.
	won, err := st.FinalizeAttempt("a1", quiz.StatusExpired, done, nil, 3, 5, 60, "Satisfactory")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if won.Status != quiz.StatusExpired || won.Answers["q1"] != "4" {
		t.Fatalf("finalized attempt = %+v", won)
	}
	if won.CompletedAt == nil || !won.CompletedAt.Equal(done) {
		t.Fatalf("completed_at = %v, want %v", won.CompletedAt, done)
	}
	if won.FinalScore != 3 || won.MaxPossibleScore != 5 || won.ScorePercent != 60 || won.Tier != "Satisfactory" {
		t.Fatalf("persisted score = %+v", won)
	}

	if _, err := st.FinalizeAttempt("a1", quiz.StatusCompleted, done, nil, 5, 5, 100, "Excellent"); !errors.Is(err, quiz.ErrAlreadyFinalized) {
		t.Fatalf("second finalize err = %v, want ErrAlreadyFinalized", err)
	}
	if _, err := st.FinalizeAttempt("missing", quiz.StatusCompleted, done, nil, 0, 0, 0, ""); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("missing finalize err = %v, want ErrAttemptNotFound", err)
	}

	// Autosave races that lose the CAS must not resurrect the attempt.
	if _, err := st.SaveProgress("a1", map[string]string{"q2": "late"}, 3); !errors.Is(err, quiz.ErrInvalidState) {
		t.Fatalf("save after finalize err = %v, want ErrInvalidState", err)
	}
	got, _ := st.GetAttempt("a1")
	if got.FinalScore != 3 || got.Answers["q2"] != "" {
		t.Fatalf("finalized row mutated: %+v", got)
	}
}

func TestSQLStore_FinalizeWithSubmittedAnswers(t *testing.T) {
	st := newSQLiteStore(t)
	_ = st.CreateAttempt(quiz.Attempt{
		ID: "a1", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: time.Now().UTC(),
		Answers: map[string]string{"q1": "stale"},
	})

	won, err := st.FinalizeAttempt("a1", quiz.StatusCompleted, time.Now().UTC(),
		map[string]string{"q1": "4", "q2": "Paris"}, 5, 5, 100, "Excellent")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if won.Answers["q1"] != "4" || won.Answers["q2"] != "Paris" {
		t.Fatalf("submitted answers not persisted: %v", won.Answers)
	}
}

func TestSQLStore_AttemptLog(t *testing.T) {
	st := newSQLiteStore(t)
	_ = st.CreateAttempt(quiz.Attempt{
		ID: "a1", QuizID: "quiz-1", QuizVersion: 1, UserID: "u1",
		Status: quiz.StatusInProgress, StartedAt: time.Now().UTC(),
	})

	at := time.Now().UTC().Truncate(time.Second)
	qidx := 1
	if err := st.AppendLog("a1", quiz.LogEntry{At: at, Action: "tab_blur", Severity: quiz.SeverityLow}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := st.AppendLog("a1", quiz.LogEntry{
		At: at.Add(time.Second), Action: "copy_attempt", Detail: "ctrl+c",
		Severity: quiz.SeverityHigh, QuestionIndex: &qidx,
	}); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	entries, err := st.GetLogs("a1")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "tab_blur" || entries[1].Action != "copy_attempt" {
		t.Fatalf("log order = %+v", entries)
	}
	if !entries[0].At.Equal(at) {
		t.Fatalf("timestamp round-trip = %v, want %v", entries[0].At, at)
	}
	if entries[0].QuestionIndex != nil {
		t.Fatalf("question index invented: %+v", entries[0])
	}
	if entries[1].QuestionIndex == nil || *entries[1].QuestionIndex != 1 {
		t.Fatalf("question index lost: %+v", entries[1])
	}

	if _, err := st.FinalizeAttempt("a1", quiz.StatusCompleted, time.Now().UTC(), nil, 0, 0, 0, "Needs Improvement"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := st.AppendLog("a1", quiz.LogEntry{At: at, Action: "tab_blur", Severity: quiz.SeverityLow}); !errors.Is(err, quiz.ErrInvalidState) {
		t.Fatalf("append after finalize err = %v, want ErrInvalidState", err)
	}
	if _, err := st.GetLogs("missing"); !errors.Is(err, quiz.ErrAttemptNotFound) {
		t.Fatalf("missing attempt err = %v, want ErrAttemptNotFound", err)
	}
}
