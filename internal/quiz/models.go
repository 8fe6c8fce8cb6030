package quiz

import "time"

// Attempt status values. An attempt leaves in_progress exactly once.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusExpired    = "expired"
)

// Log entry severities, from advisory to tamper-evident.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	// CorrectAnswer and Explanation are stripped from student-facing views
	// until the attempt is finalized.
	CorrectAnswer string  `json:"correct_answer,omitempty"`
	Explanation   string  `json:"explanation,omitempty"`
	Points        float64 `json:"points"`
}

// QuizDefinition is immutable once an attempt references it: attempts pin
// the Version they started against, and uploads bump it.
type QuizDefinition struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Version   int        `json:"version"`
	Questions []Question `json:"questions"`

	// Zero means untimed.
	TimeLimit time.Duration `json:"time_limit_ns,omitempty"`
	// Optional open/close window. Nil means always open / never closes.
	OpensAt  *time.Time `json:"opens_at,omitempty"`
	ClosesAt *time.Time `json:"closes_at,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

func (q QuizDefinition) MaxPoints() float64 {
	total := 0.0
	for _, qu := range q.Questions {
		total += qu.Points
	}
	return total
}

// StudentView returns a copy safe to serve before submission.
func (q QuizDefinition) StudentView() QuizDefinition {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	copy(out.Questions, q.Questions)
	for i := range out.Questions {
		out.Questions[i].CorrectAnswer = ""
		out.Questions[i].Explanation = ""
	}
	return out
}

// LogEntry is one flagged client event. Write-once from the student's
// session, readable only by staff.
type LogEntry struct {
	At            time.Time `json:"at"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail,omitempty"`
	Severity      string    `json:"severity"`
	QuestionIndex *int      `json:"question_index,omitempty"`
}

func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Attempt is one student's timed instance of a quiz. Answers maps question
// id to the selected value and is mutable only while Status is in_progress.
// ExpiresAt, once set, never changes.
type Attempt struct {
	ID          string `json:"id"`
	QuizID      string `json:"quiz_id"`
	QuizVersion int    `json:"quiz_version"`
	UserID      string `json:"user_id"`

	Status       string            `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Answers      map[string]string `json:"answers"`
	CurrentIndex int               `json:"current_index"`

	FinalScore       float64 `json:"final_score"`
	MaxPossibleScore float64 `json:"max_possible_score"`
	ScorePercent     float64 `json:"score_percent"`
	Tier             string  `json:"tier,omitempty"`
}

func (a Attempt) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusExpired
}

// Eligibility is the answer to "may this student start or resume this quiz".
type Eligibility struct {
	CanAttempt           bool     `json:"can_attempt"`
	Reason               string   `json:"reason,omitempty"`
	HasCompletedAttempt  bool     `json:"has_completed_attempt"`
	HasInProgressAttempt bool     `json:"has_in_progress_attempt"`
	ExistingAttempt      *Attempt `json:"existing_attempt,omitempty"`
}
