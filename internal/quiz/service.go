package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/classpulse-backend/internal/notify"
	"github.com/classpulse/classpulse-backend/internal/scheduler"
	"github.com/classpulse/classpulse-backend/internal/scoring"
)

type Clock func() time.Time

// Options tune attempt-lifecycle policy.
type Options struct {
	// AllowRetryAfterExpiry lets a student start over after timing out.
	// Off by default: an expired attempt counts as completed for eligibility.
	AllowRetryAfterExpiry bool
	// Warnings pushed before expiry, e.g. 5m and 1m remaining.
	Warnings []time.Duration
	Clock    Clock
}

// Service is the timed-attempt lifecycle engine: eligibility gating,
// idempotent start/resume, autosave, deadline enforcement, scoring and the
// suspicious-activity log. The store is the single source of truth; the
// in-process timers are only a fast path over the durable expires_at.
type Service struct {
	store    Store
	notifier notify.Gateway
	timers   *scheduler.Scheduler

	allowRetry bool
	warnings   []time.Duration
	now        Clock
}

func NewService(store Store, notifier notify.Gateway, opts Options) *Service {
	s := &Service{
		store:      store,
		notifier:   notifier,
		allowRetry: opts.AllowRetryAfterExpiry,
		warnings:   opts.Warnings,
		now:        opts.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.warnings == nil {
		s.warnings = []time.Duration{5 * time.Minute, time.Minute}
	}
	s.timers = scheduler.New(s.expireAttempt, scheduler.Clock(s.now))
	return s
}

// Shutdown stops all pending timers. Deadlines stay durable in the store.
func (s *Service) Shutdown() { s.timers.Shutdown() }

// CheckEligibility applies the attempt-gating rules in order: a completed
// attempt blocks, an in-progress attempt is returned for resumption,
// otherwise the student may start fresh.
func (s *Service) CheckEligibility(ctx context.Context, quizID, userID string) (Eligibility, error) {
	if _, err := s.store.GetQuizFull(ctx, quizID, 0); err != nil {
		return Eligibility{}, err
	}
	attempts, err := s.store.ListAttempts(quizID, userID)
	if err != nil {
		return Eligibility{}, err
	}

	var inProgress *Attempt
	completed := false
	expired := false
	for i := range attempts {
		switch attempts[i].Status {
		case StatusCompleted:
			completed = true
		case StatusExpired:
			expired = true
		case StatusInProgress:
			inProgress = &attempts[i]
		}
	}

	e := Eligibility{HasCompletedAttempt: completed}
	switch {
	case completed:
		e.Reason = "quiz already completed"
	case expired && !s.allowRetry:
		// Timing out does not earn a second try.
		e.HasCompletedAttempt = true
		e.Reason = "a previous attempt ran out of time"
	case inProgress != nil:
		e.CanAttempt = true
		e.HasInProgressAttempt = true
		e.ExistingAttempt = inProgress
		e.Reason = "attempt in progress, resume it"
	default:
		e.CanAttempt = true
	}
	return e, nil
}

// StartOrResume returns the existing in-progress attempt unchanged, or
// creates a new one with the deadline armed. Calling it repeatedly is safe.
func (s *Service) StartOrResume(ctx context.Context, quizID, userID string) (Attempt, error) {
	elig, err := s.CheckEligibility(ctx, quizID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if elig.HasInProgressAttempt {
		a := *elig.ExistingAttempt
		// Re-arm in case this process never saw the attempt start.
		s.armTimers(a)
		return a, nil
	}
	if !elig.CanAttempt {
		return Attempt{}, fmt.Errorf("%w: %s", ErrNotEligible, elig.Reason)
	}

	q, err := s.store.GetQuizFull(ctx, quizID, 0)
	if err != nil {
		return Attempt{}, err
	}
	now := s.now().UTC()
	if q.OpensAt != nil && now.Before(*q.OpensAt) {
		return Attempt{}, fmt.Errorf("%w: quiz is not open yet", ErrNotEligible)
	}
	if q.ClosesAt != nil && now.After(*q.ClosesAt) {
		return Attempt{}, fmt.Errorf("%w: quiz window has closed", ErrNotEligible)
	}

	a := Attempt{
		ID:          uuid.NewString(),
		QuizID:      q.ID,
		QuizVersion: q.Version,
		UserID:      userID,
		Status:      StatusInProgress,
		StartedAt:   now,
		Answers:     map[string]string{},
	}
	if q.TimeLimit > 0 {
		expires := now.Add(q.TimeLimit)
		a.ExpiresAt = &expires
	}
	if err := s.store.CreateAttempt(a); err != nil {
		// Lost a start/start race: another call (or instance) created the live
		// attempt between our eligibility read and the insert. Resume theirs.
		if errors.Is(err, ErrDuplicateAttempt) {
			existing, rerr := s.Resume(ctx, quizID, userID)
			if rerr != nil {
				return Attempt{}, err
			}
			s.armTimers(existing)
			return existing, nil
		}
		return Attempt{}, err
	}
	s.armTimers(a)
	return a, nil
}

// Resume returns the in-progress attempt with saved answers and position so
// a reconnecting client can rebuild its state.
func (s *Service) Resume(ctx context.Context, quizID, userID string) (Attempt, error) {
	attempts, err := s.store.ListAttempts(quizID, userID)
	if err != nil {
		return Attempt{}, err
	}
	for _, a := range attempts {
		if a.Status == StatusInProgress {
			return a, nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

// SaveProgress merges partial answers last-write-wins and moves the cursor.
// Safe to call repeatedly and out of order.
func (s *Service) SaveProgress(ctx context.Context, attemptID, callerID string, answers map[string]string, currentIndex int) (Attempt, error) {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != callerID {
		return Attempt{}, ErrForbidden
	}
	return s.store.SaveProgress(attemptID, answers, currentIndex)
}

// Result is what a student sees after their attempt is finalized.
type Result struct {
	Attempt          Attempt         `json:"attempt"`
	Summary          scoring.Summary `json:"summary"`
	TimeTakenMinutes int             `json:"time_taken_minutes,omitempty"`
}

// Submit finalizes the attempt with the student's answers. Losing the race
// against the expiry timer yields ErrAlreadyFinalized; the caller should
// fetch the expired result instead of treating it as a failure.
func (s *Service) Submit(ctx context.Context, attemptID, callerID string, finalAnswers map[string]string, timeTakenMinutes int) (Result, error) {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.UserID != callerID {
		return Result{}, ErrForbidden
	}
	if a.Terminal() {
		return Result{}, ErrAlreadyFinalized
	}

	q, err := s.store.GetQuizFull(ctx, a.QuizID, a.QuizVersion)
	if err != nil {
		return Result{}, err
	}

	// Final payload wins per question; anything omitted falls back to the
	// last autosaved value.
	merged := make(map[string]string, len(a.Answers)+len(finalAnswers))
	for k, v := range a.Answers {
		merged[k] = v
	}
	for k, v := range finalAnswers {
		merged[k] = v
	}

	sum := scoring.Score(scoringQuestions(q), merged)
	final, err := s.store.FinalizeAttempt(a.ID, StatusCompleted, s.now().UTC(), merged,
		sum.FinalScore, sum.MaxPossibleScore, sum.ScorePercent, sum.Tier)
	if err != nil {
		return Result{}, err
	}
	// Cancel before reporting success; a timer that already fired lost the
	// CAS above and is a no-op.
	s.timers.Cancel(a.ID)
	return Result{Attempt: final, Summary: sum, TimeTakenMinutes: timeTakenMinutes}, nil
}

// GetResult rebuilds the scored breakdown for a terminal attempt, so a
// student who timed out sees the same result shape as one who submitted.
// staff bypasses the ownership check.
func (s *Service) GetResult(ctx context.Context, attemptID, callerID string, staff bool) (Result, error) {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return Result{}, err
	}
	if !staff && a.UserID != callerID {
		return Result{}, ErrForbidden
	}
	if !a.Terminal() {
		return Result{}, ErrInvalidState
	}
	q, err := s.store.GetQuizFull(ctx, a.QuizID, a.QuizVersion)
	if err != nil {
		return Result{}, err
	}
	return Result{Attempt: a, Summary: scoring.Score(scoringQuestions(q), a.Answers)}, nil
}

// LogAction appends one suspicious-activity entry to the attempt's
// append-only log.
func (s *Service) LogAction(ctx context.Context, attemptID, callerID string, e LogEntry) error {
	if e.Action == "" || !ValidSeverity(e.Severity) {
		return ErrInvalidEntry
	}
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return err
	}
	if a.UserID != callerID {
		return ErrForbidden
	}
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	return s.store.AppendLog(attemptID, e)
}

// GetLogs returns the full ordered log. Restricting it to staff is the
// caller's job (RBAC sits at the transport boundary).
func (s *Service) GetLogs(ctx context.Context, attemptID string) ([]LogEntry, error) {
	return s.store.GetLogs(attemptID)
}

// ScheduleWarning arms one advisory "time remaining" push. No state changes.
func (s *Service) ScheduleWarning(ctx context.Context, attemptID, studentID string, remaining time.Duration) error {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return err
	}
	if a.UserID != studentID {
		return ErrForbidden
	}
	if a.Terminal() || a.ExpiresAt == nil {
		return ErrInvalidState
	}
	at := a.ExpiresAt.Add(-remaining)
	s.timers.ScheduleWarning(attemptID, at, func() {
		s.notifier.PushToStudent(studentID, remainingMessage(remaining))
	})
	return nil
}

// Reconcile re-arms timers for live deadlines and force-expires overdue
// attempts. Run once at startup and periodically after that: it is the
// enforcement mechanism, the in-memory timers are just lower latency. All
// paths are idempotent, so overlapping sweeps (or sweeps on several
// instances) are safe.
func (s *Service) Reconcile(ctx context.Context) error {
	attempts, err := s.store.ListInProgress(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, a := range attempts {
		if a.ExpiresAt == nil {
			continue
		}
		if now.Before(*a.ExpiresAt) {
			s.armTimers(a)
		} else {
			s.expireAttempt(a.ID)
		}
	}
	return nil
}

// RunSweep blocks, reconciling every interval until the context ends.
func (s *Service) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				log.Printf("reconcile sweep: %v", err)
			}
		}
	}
}

// expireAttempt is the timer-fire path. It re-reads the attempt and walks
// away if submission won the race; otherwise it scores the last autosaved
// answers and CAS-finalizes to expired. Infrastructure failures are logged,
// not raised: the attempt stays in_progress and the next sweep retries.
func (s *Service) expireAttempt(attemptID string) {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		log.Printf("expire attempt %s: %v", attemptID, err)
		return
	}
	if a.Status != StatusInProgress {
		return
	}
	q, err := s.store.GetQuizFull(context.Background(), a.QuizID, a.QuizVersion)
	if err != nil {
		log.Printf("expire attempt %s: load quiz: %v", attemptID, err)
		return
	}
	sum := scoring.Score(scoringQuestions(q), a.Answers)
	_, err = s.store.FinalizeAttempt(a.ID, StatusExpired, s.now().UTC(), nil,
		sum.FinalScore, sum.MaxPossibleScore, sum.ScorePercent, sum.Tier)
	switch {
	case errors.Is(err, ErrAlreadyFinalized):
		return // submission got there first
	case err != nil:
		log.Printf("expire attempt %s: finalize: %v", attemptID, err)
		return
	}
	s.timers.Cancel(a.ID) // drop any pending warnings
	s.notifier.PushToStudent(a.UserID,
		fmt.Sprintf("Time is up for %q. Your answers were submitted automatically.", q.Title))
}

func (s *Service) armTimers(a Attempt) {
	if a.ExpiresAt == nil || a.Status != StatusInProgress {
		return
	}
	s.timers.Arm(a.ID, *a.ExpiresAt)
	for _, w := range s.warnings {
		at := a.ExpiresAt.Add(-w)
		msg := remainingMessage(w)
		userID := a.UserID
		s.timers.ScheduleWarning(a.ID, at, func() {
			s.notifier.PushToStudent(userID, msg)
		})
	}
}

func remainingMessage(remaining time.Duration) string {
	min := int(remaining.Round(time.Minute) / time.Minute)
	if min <= 1 {
		return "1 minute remaining on your quiz attempt."
	}
	return fmt.Sprintf("%d minutes remaining on your quiz attempt.", min)
}

func scoringQuestions(q QuizDefinition) []scoring.Q {
	out := make([]scoring.Q, 0, len(q.Questions))
	for _, qu := range q.Questions {
		out = append(out, scoring.Q{
			ID:            qu.ID,
			Prompt:        qu.Prompt,
			CorrectAnswer: qu.CorrectAnswer,
			Explanation:   qu.Explanation,
			Points:        qu.Points,
		})
	}
	return out
}
