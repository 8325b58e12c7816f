package app

import (
	"context"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/scoring"
)

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	AttemptID        string                  `json:"attemptId"`
	Score            int                     `json:"score"`
	MaxScore         int                     `json:"maxScore"`
	StartTime        time.Time               `json:"startTime"`
	EndTime          time.Time               `json:"endTime"`
	SubmissionReason domain.SubmissionReason `json:"submissionReason"`
}

// Submit seals the attempt exactly once. A second call fails with ErrInvalidState.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID string, reason domain.SubmissionReason) (SubmitResult, error) {
	if !reason.Valid() {
		return SubmitResult{}, fmt.Errorf("%w: unknown submission reason %q", domain.ErrInvalidArgument, reason)
	}
	attempt, err := s.loadActive(ctx, attemptID, studentID)
	if err != nil {
		return SubmitResult{}, err
	}

	sealed, err := s.seal(ctx, attempt, reason, s.now())
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		AttemptID:        sealed.ID,
		Score:            sealed.Score,
		MaxScore:         sealed.MaxScore,
		StartTime:        sealed.StartTime,
		EndTime:          *sealed.EndTime,
		SubmissionReason: sealed.SubmissionReason,
	}, nil
}

// PublishResults makes the scores of every completed attempt of the quiz visible.
func (s *AttemptService) PublishResults(ctx context.Context, quizID string) (int, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return 0, err
	}
	return s.attempts.PublishCompleted(ctx, quizID)
}

// seal completes the attempt together with any pending time-away changes. The
// answer key is reloaded and the store grades the answers it holds at write time.
func (s *AttemptService) seal(ctx context.Context, attempt domain.Attempt, reason domain.SubmissionReason, now time.Time) (domain.Attempt, error) {
	quiz, err := s.quizzes.ReloadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	end := now
	attempt.EndTime = &end
	attempt.SubmittedAutomatically = reason != domain.ReasonManual
	attempt.SubmissionReason = reason

	return s.attempts.Seal(ctx, attempt, func(answers map[string][]string) (int, int) {
		graded := attempt
		graded.Answers = answers
		return scoring.CalculateScore(graded, quiz.Questions)
	})
}
