package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/google/uuid"
)

// DefaultAwayLimit is the longest away window that does not seal the attempt.
const DefaultAwayLimit = 180 * time.Second

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// ReloadQuiz bypasses the cache and refreshes it. Scoring reads through it.
	ReloadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListPublished(ctx context.Context) ([]domain.Quiz, error)
}

// AttemptRepository abstracts attempt persistence (in-memory, Redis, Postgres).
// Implementations enforce the uniqueness and compare-and-swap rules themselves;
// the service never relies on a read followed by an unconditional write.
type AttemptRepository interface {
	// CreateActive stores a new active attempt unless one already exists for the
	// same (quiz, student), in which case the existing one is returned with created=false.
	// It fails with domain.ErrAlreadyCompleted if a completed attempt exists.
	CreateActive(ctx context.Context, attempt domain.Attempt) (stored domain.Attempt, created bool, err error)
	// FindCompleted returns the completed attempt for (quiz, student) or domain.ErrAttemptNotFound.
	FindCompleted(ctx context.Context, quizID, studentID string) (domain.Attempt, error)
	// GetOwned returns the attempt if it belongs to studentID, else domain.ErrAttemptNotFound.
	GetOwned(ctx context.Context, attemptID, studentID string) (domain.Attempt, error)
	// SetAnswer replaces the selection of one question on an active attempt.
	SetAnswer(ctx context.Context, attemptID, studentID, questionID string, optionIDs []string) error
	// Save writes the lifecycle fields (time away, completion, score) if the stored
	// version still equals attempt.Version and the attempt is not completed.
	// SetAnswer does not move the version.
	Save(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
	// Seal is Save with completion, scoring the answers stored at write time with grade.
	Seal(ctx context.Context, attempt domain.Attempt, grade domain.Grader) (domain.Attempt, error)
	// PublishCompleted flags unpublished completed attempts of a quiz and returns how many changed.
	PublishCompleted(ctx context.Context, quizID string) (int, error)
	ListCompleted(ctx context.Context, quizID string) ([]domain.Attempt, error)
	ListByStudent(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error)
}

// AttemptService contains the attempt lifecycle use cases.
type AttemptService struct {
	attempts  AttemptRepository
	quizzes   QuizRepository
	now       func() time.Time
	newID     func() string
	awayLimit time.Duration
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.now = now }
}

// WithIDGenerator replaces the UUID attempt id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *AttemptService) { s.newID = newID }
}

// WithAwayLimit overrides DefaultAwayLimit. Non-positive values are ignored.
func WithAwayLimit(limit time.Duration) Option {
	return func(s *AttemptService) {
		if limit > 0 {
			s.awayLimit = limit
		}
	}
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, opts ...Option) *AttemptService {
	s := &AttemptService{
		attempts:  attempts,
		quizzes:   quizzes,
		now:       time.Now,
		newID:     uuid.NewString,
		awayLimit: DefaultAwayLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartResult is returned by StartAttempt; Created is false on resume.
type StartResult struct {
	Attempt domain.StudentAttempt
	Created bool
}

// StartAttempt creates an attempt, or resumes the active one for (quiz, student).
func (s *AttemptService) StartAttempt(ctx context.Context, quizID, studentID string) (StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if !quiz.Published {
		return StartResult{}, domain.ErrQuizNotFound
	}

	if _, err := s.attempts.FindCompleted(ctx, quizID, studentID); err == nil {
		return StartResult{}, domain.ErrAlreadyCompleted
	} else if !errors.Is(err, domain.ErrAttemptNotFound) {
		return StartResult{}, err
	}

	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quizID,
		StudentID: studentID,
		StartTime: s.now(),
		Answers:   domain.EmptyAnswers(quiz.Questions),
	}
	stored, created, err := s.attempts.CreateActive(ctx, attempt)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{
		Attempt: domain.StudentAttempt{Attempt: domain.NewAttemptView(stored), Quiz: quiz.StudentView()},
		Created: created,
	}, nil
}

// SaveAnswer replaces the student's selection for one question.
// Unknown question or option ids are stored as-is; they can never match when scored.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID, studentID, questionID string, optionIDs []string) error {
	if strings.TrimSpace(questionID) == "" {
		return fmt.Errorf("%w: question id is required", domain.ErrInvalidArgument)
	}
	if _, err := s.loadActive(ctx, attemptID, studentID); err != nil {
		return err
	}
	return s.attempts.SetAnswer(ctx, attemptID, studentID, questionID, domain.NormalizeSelection(optionIDs))
}

// loadActive returns the caller's attempt, failing with ErrInvalidState once it is sealed.
func (s *AttemptService) loadActive(ctx context.Context, attemptID, studentID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetOwned(ctx, attemptID, studentID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.IsCompleted {
		return domain.Attempt{}, fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
	}
	return attempt, nil
}
