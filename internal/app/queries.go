package app

import (
	"context"
	"fmt"
	"sort"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/scoring"
)

// GetAttempt returns the caller's attempt with the answer key removed from the quiz.
// Scores of completed attempts stay hidden until they are published.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, studentID string) (domain.StudentAttempt, error) {
	attempt, err := s.attempts.GetOwned(ctx, attemptID, studentID)
	if err != nil {
		return domain.StudentAttempt{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.StudentAttempt{}, err
	}
	return domain.StudentAttempt{Attempt: domain.NewAttemptView(attempt), Quiz: quiz.StudentView()}, nil
}

// GetResults returns the result view of a completed attempt.
func (s *AttemptService) GetResults(ctx context.Context, attemptID, studentID string) (domain.AttemptResult, error) {
	attempt, err := s.attempts.GetOwned(ctx, attemptID, studentID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if !attempt.IsCompleted {
		return domain.AttemptResult{}, fmt.Errorf("%w: attempt is not completed", domain.ErrAttemptNotFound)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}

	result := domain.AttemptResult{
		AttemptID:              attempt.ID,
		QuizID:                 attempt.QuizID,
		QuizTitle:              quiz.Title,
		StartTime:              attempt.StartTime,
		EndTime:                attempt.EndTime,
		SubmissionReason:       attempt.SubmissionReason,
		SubmittedAutomatically: attempt.SubmittedAutomatically,
		IsScorePublished:       attempt.IsScorePublished,
	}
	if attempt.IsScorePublished {
		score, maxScore := attempt.Score, attempt.MaxScore
		result.Score = &score
		result.MaxScore = &maxScore
		result.Questions = scoring.Breakdown(attempt, quiz.Questions)
	}
	return result, nil
}

// ListPublishedQuizzes returns the published quizzes without their questions.
func (s *AttemptService) ListPublishedQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	quizzes, err := s.quizzes.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizSummary, 0, len(quizzes))
	for _, quiz := range quizzes {
		if quiz.Published {
			out = append(out, quiz.Summary())
		}
	}
	return out, nil
}

// QuizOverview returns a published quiz with the caller's attempts on it.
func (s *AttemptService) QuizOverview(ctx context.Context, quizID, studentID string) (domain.QuizOverview, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizOverview{}, err
	}
	if !quiz.Published {
		return domain.QuizOverview{}, domain.ErrQuizNotFound
	}
	attempts, err := s.attempts.ListByStudent(ctx, quizID, studentID)
	if err != nil {
		return domain.QuizOverview{}, err
	}

	summaries := make([]domain.AttemptSummary, 0, len(attempts))
	for _, attempt := range attempts {
		summary := domain.AttemptSummary{
			ID:          attempt.ID,
			StartTime:   attempt.StartTime,
			EndTime:     attempt.EndTime,
			IsCompleted: attempt.IsCompleted,
		}
		if attempt.IsScorePublished {
			score, maxScore := attempt.Score, attempt.MaxScore
			summary.Score = &score
			summary.MaxScore = &maxScore
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.Before(summaries[j].StartTime)
	})
	return domain.QuizOverview{Quiz: quiz.StudentView(), Attempts: summaries}, nil
}

// ListCompletedAttempts lists the completed attempts of a quiz, most recent end time first.
func (s *AttemptService) ListCompletedAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListCompleted(ctx, quizID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(attempts, func(i, j int) bool {
		a, b := attempts[i].EndTime, attempts[j].EndTime
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	return attempts, nil
}
