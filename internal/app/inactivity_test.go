package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestAwayWithinLimitAccumulates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")

	for _, d := range []time.Duration{30 * time.Second, 180 * time.Second} {
		if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayStart); err != nil {
			t.Fatalf("away start: %v", err)
		}
		f.advance(d)
		res, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayEnd)
		if err != nil {
			t.Fatalf("away end: %v", err)
		}
		if res.AutoSubmitted {
			t.Fatalf("away of %v must not auto-submit", d)
		}
	}

	stored, _ := f.store.GetOwned(ctx, attempt.ID, "s1")
	if stored.TimeAway.Count != 2 || stored.TimeAway.TotalDuration != 210 {
		t.Fatalf("expected 2 windows totalling 210s, got %+v", stored.TimeAway)
	}
	if stored.TimeAway.Open() || stored.IsCompleted {
		t.Fatalf("unexpected state: %+v", stored)
	}
}

func TestAwayTooLongAutoSubmits(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")
	_ = f.service.SaveAnswer(ctx, attempt.ID, "s1", "q3", []string{"true"})

	if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayStart); err != nil {
		t.Fatalf("away start: %v", err)
	}
	f.advance(181 * time.Second)
	res, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayEnd)
	if err != nil {
		t.Fatalf("away end: %v", err)
	}
	if !res.AutoSubmitted || res.SubmissionReason != domain.ReasonAwayTooLong {
		t.Fatalf("expected away_too_long auto-submit, got %+v", res)
	}
	if res.Score == nil || *res.Score != 1 || *res.MaxScore != 4 {
		t.Fatalf("expected score 1/4, got %+v", res)
	}

	stored, _ := f.store.GetOwned(ctx, attempt.ID, "s1")
	if !stored.IsCompleted || !stored.SubmittedAutomatically || stored.TimeAway.Count != 1 {
		t.Fatalf("unexpected sealed attempt: %+v", stored)
	}
	if !stored.EndTime.Equal(f.now) {
		t.Fatalf("expected end time %v, got %v", f.now, stored.EndTime)
	}
	if _, err := f.service.Submit(ctx, attempt.ID, "s1", domain.ReasonManual); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after auto-submit, got %v", err)
	}
}

func TestAwayStateErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")

	if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayEnd); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for end without start, got %v", err)
	}
	if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayStart); err != nil {
		t.Fatalf("away start: %v", err)
	}
	if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayStart); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for double start, got %v", err)
	}
	if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", "pause"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	stored, _ := f.store.GetOwned(ctx, attempt.ID, "s1")
	if stored.TimeAway.Count != 0 || !stored.TimeAway.Open() {
		t.Fatalf("failed calls must not change time away: %+v", stored.TimeAway)
	}
}

func TestAwayOnCompletedAttempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempt := f.start(t, "s1")
	_, _ = f.service.Submit(ctx, attempt.ID, "s1", domain.ReasonManual)

	if _, err := f.service.RegisterAway(ctx, attempt.ID, "s1", domain.AwayStart); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
