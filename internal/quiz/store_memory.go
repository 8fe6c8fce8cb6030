package quiz

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore backs dev mode and tests. Same semantics as the SQL store,
// including the CAS finalize.
type memoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string][]QuizDefinition // id -> versions, ascending
	attempts map[string]Attempt
	logs     map[string][]LogEntry
}

func NewMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string][]QuizDefinition{},
		attempts: map[string]Attempt{},
		logs:     map[string][]LogEntry{},
	}
}

func (m *memoryStore) PutQuiz(q QuizDefinition) (QuizDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.quizzes[q.ID]
	q.Version = len(versions) + 1
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	m.quizzes[q.ID] = append(versions, q)
	return q, nil
}

func (m *memoryStore) GetQuiz(id string) (QuizDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.quizzes[id]
	if len(versions) == 0 {
		return QuizDefinition{}, ErrQuizNotFound
	}
	return versions[len(versions)-1].StudentView(), nil
}

func (m *memoryStore) GetQuizFull(_ context.Context, id string, version int) (QuizDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.quizzes[id]
	if len(versions) == 0 {
		return QuizDefinition{}, ErrQuizNotFound
	}
	if version == 0 {
		return versions[len(versions)-1], nil
	}
	if version < 1 || version > len(versions) {
		return QuizDefinition{}, ErrQuizNotFound
	}
	return versions[version-1], nil
}

func (m *memoryStore) CreateAttempt(a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == StatusInProgress {
		for _, existing := range m.attempts {
			if existing.QuizID == a.QuizID && existing.UserID == a.UserID &&
				existing.Status == StatusInProgress {
				return ErrDuplicateAttempt
			}
		}
	}
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) GetAttempt(id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return copyAttempt(a), nil
}

func (m *memoryStore) ListAttempts(quizID, userID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			out = append(out, copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *memoryStore) SaveProgress(attemptID string, answers map[string]string, currentIndex int) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrInvalidState
	}
	merged := map[string]string{}
	for k, v := range a.Answers {
		merged[k] = v
	}
	for k, v := range answers {
		merged[k] = v
	}
	a.Answers = merged
	a.CurrentIndex = currentIndex
	m.attempts[attemptID] = a
	return copyAttempt(a), nil
}

func (m *memoryStore) FinalizeAttempt(attemptID, toStatus string, completedAt time.Time, answers map[string]string, score, maxScore, percent float64, tier string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAlreadyFinalized
	}
	a.Status = toStatus
	a.CompletedAt = &completedAt
	if answers != nil {
		a.Answers = answers
	}
	a.FinalScore = score
	a.MaxPossibleScore = maxScore
	a.ScorePercent = percent
	a.Tier = tier
	m.attempts[attemptID] = a
	return copyAttempt(a), nil
}

func (m *memoryStore) AppendLog(attemptID string, e LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.Terminal() {
		return ErrInvalidState
	}
	m.logs[attemptID] = append(m.logs[attemptID], e)
	return nil
}

func (m *memoryStore) GetLogs(attemptID string) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, ErrAttemptNotFound
	}
	out := make([]LogEntry, len(m.logs[attemptID]))
	copy(out, m.logs[attemptID])
	return out, nil
}

func (m *memoryStore) ListInProgress(_ context.Context) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.Status == StatusInProgress {
			out = append(out, copyAttempt(a))
		}
	}
	return out, nil
}

// copyAttempt keeps callers from mutating the store's answers map.
func copyAttempt(a Attempt) Attempt {
	answers := make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		answers[k] = v
	}
	a.Answers = answers
	return a
}
