package memory

import (
	"context"
	"fmt"
	"sync"

	"quiz-attempt-service/internal/domain"
)

type ownerKey struct {
	quizID    string
	studentID string
}

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// A single mutex makes every method atomic, which is what the uniqueness and
// compare-and-swap rules require.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.Attempt
	active    map[ownerKey]string
	completed map[ownerKey]string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		active:    make(map[ownerKey]string),
		completed: make(map[ownerKey]string),
	}
}

func (s *AttemptStore) CreateActive(_ context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{quizID: attempt.QuizID, studentID: attempt.StudentID}
	if id, ok := s.active[key]; ok {
		return s.attempts[id].Clone(), false, nil
	}
	if _, ok := s.completed[key]; ok {
		return domain.Attempt{}, false, domain.ErrAlreadyCompleted
	}

	stored := attempt.Clone()
	stored.Version = 1
	s.attempts[stored.ID] = stored
	s.active[key] = stored.ID
	return stored.Clone(), true, nil
}

func (s *AttemptStore) FindCompleted(_ context.Context, quizID, studentID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.completed[ownerKey{quizID: quizID, studentID: studentID}]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts[id].Clone(), nil
}

func (s *AttemptStore) GetOwned(_ context.Context, attemptID, studentID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.StudentID != studentID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt.Clone(), nil
}

func (s *AttemptStore) SetAnswer(_ context.Context, attemptID, studentID, questionID string, optionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.StudentID != studentID {
		return domain.ErrAttemptNotFound
	}
	if attempt.IsCompleted {
		return fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
	}
	// attempt is a copy but shares the map; replace only this key.
	if attempt.Answers == nil {
		attempt.Answers = make(map[string][]string)
	}
	attempt.Answers[questionID] = append([]string{}, optionIDs...)
	s.attempts[attemptID] = attempt
	return nil
}

func (s *AttemptStore) Save(_ context.Context, next domain.Attempt) (domain.Attempt, error) {
	return s.write(next, nil)
}

// Seal completes the attempt and scores the answers stored at the moment of the write.
func (s *AttemptStore) Seal(_ context.Context, next domain.Attempt, grade domain.Grader) (domain.Attempt, error) {
	next.IsCompleted = true
	return s.write(next, grade)
}

func (s *AttemptStore) write(next domain.Attempt, grade domain.Grader) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[next.ID]
	if !ok || current.StudentID != next.StudentID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if current.IsCompleted {
		return domain.Attempt{}, fmt.Errorf("%w: attempt already submitted", domain.ErrInvalidState)
	}
	if current.Version != next.Version {
		return domain.Attempt{}, fmt.Errorf("%w: attempt changed concurrently", domain.ErrInvalidState)
	}

	key := ownerKey{quizID: current.QuizID, studentID: current.StudentID}
	if next.IsCompleted {
		if _, ok := s.completed[key]; ok {
			return domain.Attempt{}, domain.ErrAlreadyCompleted
		}
	}

	updated := current.Clone()
	applyLifecycle(&updated, next)
	if grade != nil {
		updated.Score, updated.MaxScore = grade(updated.Clone().Answers)
	}
	updated.Version++
	s.attempts[updated.ID] = updated
	if updated.IsCompleted {
		delete(s.active, key)
		s.completed[key] = updated.ID
	}
	return updated.Clone(), nil
}

func (s *AttemptStore) PublishCompleted(_ context.Context, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, id := range s.completed {
		if key.quizID != quizID {
			continue
		}
		attempt := s.attempts[id]
		if attempt.IsScorePublished {
			continue
		}
		attempt.IsScorePublished = true
		s.attempts[id] = attempt
		count++
	}
	return count, nil
}

func (s *AttemptStore) ListCompleted(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for key, id := range s.completed {
		if key.quizID == quizID {
			out = append(out, s.attempts[id].Clone())
		}
	}
	return out, nil
}

func (s *AttemptStore) ListByStudent(_ context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := ownerKey{quizID: quizID, studentID: studentID}
	out := make([]domain.Attempt, 0, 2)
	for _, index := range []map[ownerKey]string{s.completed, s.active} {
		if id, ok := index[key]; ok {
			out = append(out, s.attempts[id].Clone())
		}
	}
	return out, nil
}

// applyLifecycle copies the fields Save is allowed to change; answers are
// owned by SetAnswer and never overwritten here.
func applyLifecycle(dst *domain.Attempt, src domain.Attempt) {
	src = src.Clone()
	dst.TimeAway = src.TimeAway
	dst.IsCompleted = src.IsCompleted
	dst.EndTime = src.EndTime
	dst.Score = src.Score
	dst.MaxScore = src.MaxScore
	dst.SubmittedAutomatically = src.SubmittedAutomatically
	dst.SubmissionReason = src.SubmissionReason
}
