package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz is missing or not published.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned when no attempt matches the id and owner.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
	// ErrAlreadyCompleted blocks a second pass at a completed quiz.
	ErrAlreadyCompleted = errors.New("quiz already completed and cannot be attempted again")
	// ErrInvalidState covers completed attempts, away window misuse and resubmission.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrInvalidArgument indicates an unrecognized action or reason.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuizNotFound) || errors.Is(err, ErrAttemptNotFound)
}
