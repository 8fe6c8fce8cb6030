package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists quizzes and attempts over database/sql. Works against
// sqlite (modernc) and postgres (pgx stdlib); both accept $N placeholders.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuiz(q QuizDefinition) (QuizDefinition, error) {
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return QuizDefinition{}, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return QuizDefinition{}, err
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version) FROM quizzes WHERE id=$1`, q.ID).Scan(&latest); err != nil {
		return QuizDefinition{}, err
	}
	q.Version = int(latest.Int64) + 1
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	_, err = tx.Exec(`INSERT INTO quizzes (id,version,title,time_limit_sec,opens_at,closes_at,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		q.ID, q.Version, q.Title, int(q.TimeLimit/time.Second),
		unixPtr(q.OpensAt), unixPtr(q.ClosesAt), string(qj), q.CreatedAt)
	if err != nil {
		return QuizDefinition{}, err
	}
	if err := tx.Commit(); err != nil {
		return QuizDefinition{}, err
	}
	return q, nil
}

func (s *SQLStore) GetQuiz(id string) (QuizDefinition, error) {
	q, err := s.GetQuizFull(context.Background(), id, 0)
	if err != nil {
		return QuizDefinition{}, err
	}
	return q.StudentView(), nil
}

func (s *SQLStore) GetQuizFull(ctx context.Context, id string, version int) (QuizDefinition, error) {
	query := `SELECT id,version,title,time_limit_sec,opens_at,closes_at,questions_json,created_at
		FROM quizzes WHERE id=$1 AND version=$2`
	args := []any{id, version}
	if version == 0 {
		query = `SELECT id,version,title,time_limit_sec,opens_at,closes_at,questions_json,created_at
			FROM quizzes WHERE id=$1 ORDER BY version DESC LIMIT 1`
		args = []any{id}
	}
	row := s.db.QueryRowContext(ctx, query, args...)

	var q QuizDefinition
	var limitSec int64
	var opens, closes sql.NullInt64
	var qjson string
	if err := row.Scan(&q.ID, &q.Version, &q.Title, &limitSec, &opens, &closes, &qjson, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuizDefinition{}, ErrQuizNotFound
		}
		return QuizDefinition{}, err
	}
	q.TimeLimit = time.Duration(limitSec) * time.Second
	q.OpensAt = timePtr(opens)
	q.ClosesAt = timePtr(closes)
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return QuizDefinition{}, fmt.Errorf("quiz %s: bad questions blob: %w", id, err)
	}
	return q, nil
}

func (s *SQLStore) CreateAttempt(a Attempt) error {
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO attempts
		(id,quiz_id,quiz_version,user_id,status,started_at,expires_at,current_index,answers_json,final_score,max_score,score_percent,tier)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,0,0,'')`,
		a.ID, a.QuizID, a.QuizVersion, a.UserID, a.Status,
		a.StartedAt.Unix(), unixPtr(a.ExpiresAt), a.CurrentIndex, string(aj))
	if err != nil && a.Status == StatusInProgress {
		// The partial unique index on (quiz_id, user_id) WHERE in_progress
		// rejects a second live attempt. Confirm rather than parsing
		// driver-specific violation errors.
		var n int
		if qerr := s.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND user_id=$2 AND status=$3`,
			a.QuizID, a.UserID, StatusInProgress).Scan(&n); qerr == nil && n > 0 {
			return ErrDuplicateAttempt
		}
	}
	return err
}

func (s *SQLStore) GetAttempt(id string) (Attempt, error) {
	return s.scanAttempt(s.db.QueryRow(attemptCols+` FROM attempts WHERE id=$1`, id))
}

func (s *SQLStore) ListAttempts(quizID, userID string) ([]Attempt, error) {
	rows, err := s.db.Query(attemptCols+` FROM attempts WHERE quiz_id=$1 AND user_id=$2 ORDER BY started_at`, quizID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectAttempts(rows)
}

func (s *SQLStore) SaveProgress(attemptID string, answers map[string]string, currentIndex int) (Attempt, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	a, err := s.scanAttempt(tx.QueryRow(attemptCols + ` FROM attempts WHERE id=$1`, attemptID))
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrInvalidState
	}
	for k, v := range answers {
		a.Answers[k] = v
	}
	a.CurrentIndex = currentIndex
	buf, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	// Guard the terminal transition even inside the tx: a concurrent finalize
	// between our read and write must win.
	res, err := tx.Exec(`UPDATE attempts SET answers_json=$1, current_index=$2 WHERE id=$3 AND status=$4`,
		string(buf), currentIndex, attemptID, StatusInProgress)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attempt{}, ErrInvalidState
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) FinalizeAttempt(attemptID, toStatus string, completedAt time.Time, answers map[string]string, score, maxScore, percent float64, tier string) (Attempt, error) {
	var answersArg any // nil keeps the stored blob (expiry scores autosaved answers)
	if answers != nil {
		buf, err := json.Marshal(answers)
		if err != nil {
			return Attempt{}, err
		}
		answersArg = string(buf)
	}
	res, err := s.db.Exec(`UPDATE attempts SET
			status=$1, completed_at=$2,
			answers_json=COALESCE($3, answers_json),
			final_score=$4, max_score=$5, score_percent=$6, tier=$7
		WHERE id=$8 AND status=$9`,
		toStatus, completedAt.Unix(), answersArg, score, maxScore, percent, tier,
		attemptID, StatusInProgress)
	if err != nil {
		return Attempt{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, err
	}
	if n == 0 {
		// Either the attempt is gone or someone else finalized first.
		if _, err := s.GetAttempt(attemptID); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, ErrAlreadyFinalized
	}
	return s.GetAttempt(attemptID)
}

func (s *SQLStore) AppendLog(attemptID string, e LogEntry) error {
	a, err := s.GetAttempt(attemptID)
	if err != nil {
		return err
	}
	if a.Terminal() {
		return ErrInvalidState
	}
	var qidx any
	if e.QuestionIndex != nil {
		qidx = *e.QuestionIndex
	}
	_, err = s.db.Exec(`INSERT INTO attempt_log (attempt_id,at,action,detail,severity,question_index)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		attemptID, e.At.Unix(), e.Action, e.Detail, e.Severity, qidx)
	return err
}

func (s *SQLStore) GetLogs(attemptID string) ([]LogEntry, error) {
	if _, err := s.GetAttempt(attemptID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT at,action,detail,severity,question_index
		FROM attempt_log WHERE attempt_id=$1 ORDER BY seq`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var at int64
		var qidx sql.NullInt64
		if err := rows.Scan(&at, &e.Action, &e.Detail, &e.Severity, &qidx); err != nil {
			return nil, err
		}
		e.At = time.Unix(at, 0).UTC()
		if qidx.Valid {
			v := int(qidx.Int64)
			e.QuestionIndex = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListInProgress(ctx context.Context) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, attemptCols+` FROM attempts WHERE status=$1`, StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectAttempts(rows)
}

const attemptCols = `SELECT id,quiz_id,quiz_version,user_id,status,started_at,expires_at,completed_at,current_index,answers_json,final_score,max_score,score_percent,tier`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var started int64
	var expires, completed sql.NullInt64
	var ajson string
	if err := row.Scan(&a.ID, &a.QuizID, &a.QuizVersion, &a.UserID, &a.Status,
		&started, &expires, &completed, &a.CurrentIndex, &ajson,
		&a.FinalScore, &a.MaxPossibleScore, &a.ScorePercent, &a.Tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	a.ExpiresAt = timePtr(expires)
	a.CompletedAt = timePtr(completed)
	if err := json.Unmarshal([]byte(ajson), &a.Answers); err != nil {
		return Attempt{}, fmt.Errorf("attempt %s: bad answers blob: %w", a.ID, err)
	}
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	return a, nil
}

func (s *SQLStore) collectAttempts(rows *sql.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		a, err := s.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
