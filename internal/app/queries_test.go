package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestGetResultsVisibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")
	_ = f.service.SaveAnswer(ctx, attempt.ID, "s1", "q1", []string{"A", "C"})

	if _, err := f.service.GetResults(ctx, attempt.ID, "s1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound for an active attempt, got %v", err)
	}
	_, _ = f.service.Submit(ctx, attempt.ID, "s1", domain.ReasonManual)

	res, err := f.service.GetResults(ctx, attempt.ID, "s1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Score != nil || len(res.Questions) != 0 || res.IsScorePublished {
		t.Fatalf("expected hidden score before publish, got %+v", res)
	}

	_, _ = f.service.PublishResults(ctx, "quiz-1")
	res, err = f.service.GetResults(ctx, attempt.ID, "s1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Score == nil || *res.Score != 1 || *res.MaxScore != 4 {
		t.Fatalf("expected 1/4, got %+v", res)
	}
	if len(res.Questions) != 4 || !res.Questions[0].Correct || res.Questions[0].Awarded != 1 {
		t.Fatalf("unexpected breakdown: %+v", res.Questions)
	}
	if res.QuizTitle != "Basics" {
		t.Fatalf("expected quiz title, got %q", res.QuizTitle)
	}
	if _, err := f.service.GetResults(ctx, attempt.ID, "s2"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound for another student, got %v", err)
	}
}

func TestQuizOverviewListsOwnAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	overview, err := f.service.QuizOverview(ctx, "quiz-1", "s1")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(overview.Attempts) != 0 || len(overview.Quiz.Questions) != 4 {
		t.Fatalf("unexpected overview: %+v", overview)
	}

	attempt := f.start(t, "s1")
	f.start(t, "s2")
	_, _ = f.service.Submit(ctx, attempt.ID, "s1", domain.ReasonManual)

	overview, _ = f.service.QuizOverview(ctx, "quiz-1", "s1")
	if len(overview.Attempts) != 1 || overview.Attempts[0].ID != attempt.ID || !overview.Attempts[0].IsCompleted {
		t.Fatalf("expected only s1's completed attempt, got %+v", overview.Attempts)
	}
	if overview.Attempts[0].Score != nil {
		t.Fatalf("expected hidden score before publish")
	}
}

func TestListCompletedAttemptsNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, student := range []string{"s1", "s2", "s3"} {
		attempt := f.start(t, student)
		f.advance(time.Minute)
		if _, err := f.service.Submit(ctx, attempt.ID, student, domain.ReasonManual); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	f.start(t, "s4")

	list, err := f.service.ListCompletedAttempts(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 completed attempts, got %d", len(list))
	}
	if list[0].StudentID != "s3" || list[2].StudentID != "s1" {
		t.Fatalf("expected newest first, got %s..%s", list[0].StudentID, list[2].StudentID)
	}
}

func TestListPublishedQuizzesOmitsDrafts(t *testing.T) {
	f := newFixture()
	draft := sampleQuiz()
	draft.ID = "draft"
	draft.Published = false
	f.quizzes.Put(draft)

	list, err := f.service.ListPublishedQuizzes(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "quiz-1" {
		t.Fatalf("expected only quiz-1, got %+v", list)
	}
	if list[0].QuestionCount != 4 || list[0].TotalPoints != 4 || list[0].Title != "Basics" {
		t.Fatalf("unexpected summary: %+v", list[0])
	}
}
