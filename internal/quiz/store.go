package quiz

import (
	"context"
	"time"
)

// Store is the single source of truth for quizzes and attempts. All engine
// components read and write through it, never through each other's memory.
type Store interface {
	// PutQuiz stores a new version of the definition and returns it with the
	// assigned version. Older versions are retained: attempts pin the version
	// they started against, so re-uploading a quiz never changes the scoring
	// of an in-flight attempt.
	PutQuiz(q QuizDefinition) (QuizDefinition, error)
	// GetQuiz returns the latest version, student-safe (no answer keys).
	GetQuiz(id string) (QuizDefinition, error)
	// GetQuizFull returns a specific version with answer keys, for scoring
	// and staff export. Version 0 means latest.
	GetQuizFull(ctx context.Context, id string, version int) (QuizDefinition, error)

	// CreateAttempt fails with ErrDuplicateAttempt when an in-progress attempt
	// already exists for the same (quiz, user): the store, not its callers, is
	// where the one-live-attempt invariant holds.
	CreateAttempt(a Attempt) error
	GetAttempt(id string) (Attempt, error)
	ListAttempts(quizID, userID string) ([]Attempt, error)

	// SaveProgress merges answers last-write-wins per question id and updates
	// the current index. Fails with ErrInvalidState once the attempt is
	// terminal.
	SaveProgress(attemptID string, answers map[string]string, currentIndex int) (Attempt, error)

	// FinalizeAttempt is the exactly-once in_progress -> terminal transition,
	// implemented as a compare-and-set on status. The losing side of a
	// submit/timeout race gets ErrAlreadyFinalized and must not overwrite the
	// winner's score. A nil answers map keeps the stored answers untouched
	// (the expiry path scores whatever was last autosaved).
	FinalizeAttempt(attemptID, toStatus string, completedAt time.Time, answers map[string]string, score, maxScore, percent float64, tier string) (Attempt, error)

	// AppendLog appends one suspicious-activity entry. Entries are never
	// edited or deleted.
	AppendLog(attemptID string, e LogEntry) error
	GetLogs(attemptID string) ([]LogEntry, error)

	// ListInProgress feeds the restart/periodic reconciliation sweep.
	ListInProgress(ctx context.Context) ([]Attempt, error)
}
