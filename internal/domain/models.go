package domain

import (
	"sort"
	"time"
)

// QuestionType identifies how a question is graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
)

// SubmissionReason records what closed an attempt.
type SubmissionReason string

const (
	ReasonNone        SubmissionReason = ""
	ReasonManual      SubmissionReason = "manual"
	ReasonTimeExpired SubmissionReason = "time_expired"
	ReasonAwayTooLong SubmissionReason = "away_too_long"
)

// Valid reports whether r may be passed to a submission.
func (r SubmissionReason) Valid() bool {
	switch r {
	case ReasonManual, ReasonTimeExpired, ReasonAwayTooLong:
		return true
	}
	return false
}

// AwayAction is the client signal for leaving or returning to an attempt.
type AwayAction string

const (
	AwayStart AwayAction = "start"
	AwayEnd   AwayAction = "end"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"isCorrect"`
}

// Question models a gradable question with one or more correct options.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options"`
	Points  int          `json:"points"` // defaults to 1 if zero
}

// Weight returns the points the question contributes to the max score.
func (q Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Duration    int        `json:"duration"` // minutes
	Published   bool       `json:"isPublished"`
	Questions   []Question `json:"questions"`
}

// TimeAway aggregates the away windows of an attempt.
type TimeAway struct {
	Count         int        `json:"count"`
	TotalDuration float64    `json:"totalDuration"` // seconds
	LastAwayStart *time.Time `json:"lastAwayStart,omitempty"`
}

// Open reports whether an away window is currently open.
func (t TimeAway) Open() bool {
	return t.LastAwayStart != nil
}

// Attempt is one student's pass at a quiz.
type Attempt struct {
	ID                     string              `json:"id"`
	QuizID                 string              `json:"quizId"`
	StudentID              string              `json:"studentId"`
	StartTime              time.Time           `json:"startTime"`
	EndTime                *time.Time          `json:"endTime,omitempty"`
	IsCompleted            bool                `json:"isCompleted"`
	Answers                map[string][]string `json:"answers"`
	Score                  int                 `json:"score"`
	MaxScore               int                 `json:"maxScore"`
	TimeAway               TimeAway            `json:"timeAway"`
	SubmittedAutomatically bool                `json:"submittedAutomatically"`
	SubmissionReason       SubmissionReason    `json:"submissionReason,omitempty"`
	IsScorePublished       bool                `json:"isScorePublished"`
	// Version counts lifecycle writes (time away, completion). Answer saves leave it alone.
	Version                int64               `json:"-"`
}

// Grader scores a stored answer set. Stores call it while holding the attempt
// so the sealed score always matches the sealed answers.
type Grader func(answers map[string][]string) (score, maxScore int)

// Clone returns a deep copy so callers never share answer slices or time pointers.
func (a Attempt) Clone() Attempt {
	out := a
	if a.EndTime != nil {
		end := *a.EndTime
		out.EndTime = &end
	}
	if a.TimeAway.LastAwayStart != nil {
		last := *a.TimeAway.LastAwayStart
		out.TimeAway.LastAwayStart = &last
	}
	out.Answers = make(map[string][]string, len(a.Answers))
	for questionID, selected := range a.Answers {
		out.Answers[questionID] = append([]string{}, selected...)
	}
	return out
}

// EmptyAnswers builds the initial answer map: one empty selection per question.
func EmptyAnswers(questions []Question) map[string][]string {
	answers := make(map[string][]string, len(questions))
	for _, q := range questions {
		answers[q.ID] = []string{}
	}
	return answers
}

// NormalizeSelection turns client option IDs into a sorted set.
func NormalizeSelection(optionIDs []string) []string {
	seen := make(map[string]struct{}, len(optionIDs))
	out := make([]string, 0, len(optionIDs))
	for _, id := range optionIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
