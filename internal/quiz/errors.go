package quiz

import "errors"

// Business-rule violations are returned as typed sentinels so callers can
// branch with errors.Is. Anything else reaching the caller is an
// infrastructure failure.
var (
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrForbidden       = errors.New("caller is not allowed to touch this attempt")
	ErrNotEligible     = errors.New("student is not eligible to start this quiz")
	ErrInvalidState    = errors.New("attempt is no longer in progress")
	// ErrAlreadyFinalized is the losing side of a submit/timeout race. It is
	// not a user error; the result is available via resume or eligibility.
	ErrAlreadyFinalized = errors.New("attempt already finalized")
	ErrInvalidEntry     = errors.New("invalid log entry")
	// ErrDuplicateAttempt guards the one-in-progress-attempt-per-(student,
	// quiz) invariant at the store. StartOrResume resolves it by resuming.
	ErrDuplicateAttempt = errors.New("an in-progress attempt already exists for this quiz")
)
