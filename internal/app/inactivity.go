package app

import (
	"context"
	"fmt"

	"quiz-attempt-service/internal/domain"
)

// AwayResult reports the time-away totals and whether the attempt was sealed.
type AwayResult struct {
	AutoSubmitted    bool                    `json:"autoSubmitted"`
	SubmissionReason domain.SubmissionReason `json:"submissionReason,omitempty"`
	Score            *int                    `json:"score,omitempty"`
	MaxScore         *int                    `json:"maxScore,omitempty"`
	TimeAway         domain.TimeAway         `json:"timeAway"`
}

// RegisterAway opens or closes an away window. Closing a window longer than the
// away limit seals and scores the attempt in the same write.
func (s *AttemptService) RegisterAway(ctx context.Context, attemptID, studentID string, action domain.AwayAction) (AwayResult, error) {
	if action != domain.AwayStart && action != domain.AwayEnd {
		return AwayResult{}, fmt.Errorf("%w: unknown away action %q", domain.ErrInvalidArgument, action)
	}

	attempt, err := s.loadActive(ctx, attemptID, studentID)
	if err != nil {
		return AwayResult{}, err
	}

	now := s.now()
	if action == domain.AwayStart {
		if attempt.TimeAway.Open() {
			return AwayResult{}, fmt.Errorf("%w: away window already open", domain.ErrInvalidState)
		}
		attempt.TimeAway.LastAwayStart = &now
		saved, err := s.attempts.Save(ctx, attempt)
		if err != nil {
			return AwayResult{}, err
		}
		return AwayResult{TimeAway: saved.TimeAway}, nil
	}

	if !attempt.TimeAway.Open() {
		return AwayResult{}, fmt.Errorf("%w: no away window open", domain.ErrInvalidState)
	}
	away := now.Sub(*attempt.TimeAway.LastAwayStart)
	if away < 0 {
		away = 0
	}
	attempt.TimeAway.Count++
	attempt.TimeAway.TotalDuration += away.Seconds()
	attempt.TimeAway.LastAwayStart = nil

	if away <= s.awayLimit {
		saved, err := s.attempts.Save(ctx, attempt)
		if err != nil {
			return AwayResult{}, err
		}
		return AwayResult{TimeAway: saved.TimeAway}, nil
	}

	sealed, err := s.seal(ctx, attempt, domain.ReasonAwayTooLong, now)
	if err != nil {
		return AwayResult{}, err
	}
	score, maxScore := sealed.Score, sealed.MaxScore
	return AwayResult{
		AutoSubmitted:    true,
		SubmissionReason: sealed.SubmissionReason,
		Score:            &score,
		MaxScore:         &maxScore,
		TimeAway:         sealed.TimeAway,
	}, nil
}
