package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

type fixture struct {
	service *app.AttemptService
	store   *memory.AttemptStore
	quizzes *memory.StaticQuizLoader
	now     time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:   memory.NewAttemptStore(),
		quizzes: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
		now:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	// Zero TTL reloads on every read so quiz edits are visible immediately.
	repo := memory.NewQuizRepository(f.quizzes, 0)
	f.service = app.NewAttemptService(f.store, repo, app.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) start(t *testing.T, studentID string) domain.AttemptView {
	t.Helper()
	res, err := f.service.StartAttempt(context.Background(), "quiz-1", studentID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return res.Attempt.Attempt
}

func sampleQuiz() domain.Quiz {
	tf := func(id string, correct string) domain.Question {
		return domain.Question{
			ID:   id,
			Text: "True or false?",
			Type: domain.QuestionTrueFalse,
			Options: []domain.Option{
				{ID: "true", Text: "True", Correct: correct == "true"},
				{ID: "false", Text: "False", Correct: correct == "false"},
			},
		}
	}
	return domain.Quiz{
		ID:        "quiz-1",
		Title:     "Basics",
		Duration:  30,
		Published: true,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "Pick the even numbers",
				Type: domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: "A", Text: "2", Correct: true},
					{ID: "B", Text: "3"},
					{ID: "C", Text: "4", Correct: true},
				},
			},
			{
				ID:   "q2",
				Text: "Pick the prime",
				Type: domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: "A", Text: "4"},
					{ID: "B", Text: "5", Correct: true},
				},
			},
			tf("q3", "true"),
			tf("q4", "false"),
		},
	}
}

func TestStartAttemptInitializesEmptyAnswers(t *testing.T) {
	f := newFixture()
	res, err := f.service.StartAttempt(context.Background(), "quiz-1", "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected a new attempt")
	}
	attempt := res.Attempt.Attempt
	if len(attempt.Answers) != 4 {
		t.Fatalf("expected 4 answer slots, got %d", len(attempt.Answers))
	}
	for id, selected := range attempt.Answers {
		if len(selected) != 0 {
			t.Fatalf("expected empty selection for %s, got %v", id, selected)
		}
	}
	if attempt.IsCompleted || attempt.TimeAway.Count != 0 || attempt.TimeAway.Open() {
		t.Fatalf("unexpected initial state: %+v", attempt)
	}
	if !attempt.StartTime.Equal(f.now) {
		t.Fatalf("expected start time %v, got %v", f.now, attempt.StartTime)
	}
}

func TestStartAttemptHidesAnswerKey(t *testing.T) {
	f := newFixture()
	res, err := f.service.StartAttempt(context.Background(), "quiz-1", "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(res.Attempt.Quiz.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(res.Attempt.Quiz.Questions))
	}
	if got := res.Attempt.Quiz.Questions[0].Points; got != 1 {
		t.Fatalf("expected default weight 1, got %d", got)
	}
}

func TestStartAttemptResumesActive(t *testing.T) {
	f := newFixture()
	first := f.start(t, "s1")
	f.advance(time.Minute)

	res, err := f.service.StartAttempt(context.Background(), "quiz-1", "s1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Created {
		t.Fatalf("expected resume, got a new attempt")
	}
	if res.Attempt.Attempt.ID != first.ID || !res.Attempt.Attempt.StartTime.Equal(first.StartTime) {
		t.Fatalf("expected the first attempt back, got %+v", res.Attempt.Attempt)
	}
}

func TestStartAttemptAfterCompletionFails(t *testing.T) {
	f := newFixture()
	attempt := f.start(t, "s1")
	if _, err := f.service.Submit(context.Background(), attempt.ID, "s1", domain.ReasonManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.StartAttempt(context.Background(), "quiz-1", "s1"); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestStartAttemptUnknownOrUnpublishedQuiz(t *testing.T) {
	f := newFixture()
	if _, err := f.service.StartAttempt(context.Background(), "missing", "s1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	draft := sampleQuiz()
	draft.ID = "draft"
	draft.Published = false
	f.quizzes.Put(draft)
	if _, err := f.service.StartAttempt(context.Background(), "draft", "s1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound for draft, got %v", err)
	}
}

func TestSaveAnswerReplacesSelection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")

	if err := f.service.SaveAnswer(ctx, attempt.ID, "s1", "q1", []string{"C", "A", "A"}); err != nil {
		t.Fatalf("save answer: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, attempt.ID, "s1", "q2", []string{"B"}); err != nil {
		t.Fatalf("save answer: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, attempt.ID, "s1", "q2", []string{"A"}); err != nil {
		t.Fatalf("save answer: %v", err)
	}

	got, err := f.service.GetAttempt(ctx, attempt.ID, "s1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	q1 := got.Attempt.Answers["q1"]
	if len(q1) != 2 || q1[0] != "A" || q1[1] != "C" {
		t.Fatalf("expected normalized [A C], got %v", q1)
	}
	if q2 := got.Attempt.Answers["q2"]; len(q2) != 1 || q2[0] != "A" {
		t.Fatalf("expected replaced [A], got %v", q2)
	}
}

func TestSaveAnswerValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")

	if err := f.service.SaveAnswer(ctx, attempt.ID, "s1", " ", []string{"A"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := f.service.SaveAnswer(ctx, attempt.ID, "s2", "q1", []string{"A"}); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound for another student, got %v", err)
	}
	if _, err := f.service.Submit(ctx, attempt.ID, "s1", domain.ReasonManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, attempt.ID, "s1", "q1", []string{"A"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after submit, got %v", err)
	}
}

func TestGetAttemptMasksScoreUntilPublished(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")
	_ = f.service.SaveAnswer(ctx, attempt.ID, "s1", "q3", []string{"true"})
	if _, err := f.service.Submit(ctx, attempt.ID, "s1", domain.ReasonManual); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := f.service.GetAttempt(ctx, attempt.ID, "s1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.Attempt.Score != nil || got.Attempt.MaxScore != nil {
		t.Fatalf("expected no score before publish, got %v/%v", got.Attempt.Score, got.Attempt.MaxScore)
	}
	if got.Attempt.Attempt.Score != 0 {
		t.Fatalf("unpublished score leaked through the embedded attempt: %d", got.Attempt.Attempt.Score)
	}

	if _, err := f.service.PublishResults(ctx, "quiz-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, _ = f.service.GetAttempt(ctx, attempt.ID, "s1")
	if got.Attempt.Score == nil || *got.Attempt.Score != 1 || *got.Attempt.MaxScore != 4 {
		t.Fatalf("expected 1/4 after publish, got %v/%v", got.Attempt.Score, got.Attempt.MaxScore)
	}
}
