package domain

import "time"

// StudentOption is an option without its correctness flag.
type StudentOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// StudentQuestion is the student-facing shape of a question.
type StudentQuestion struct {
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Type    QuestionType    `json:"type"`
	Points  int             `json:"points"`
	Options []StudentOption `json:"options"`
}

// StudentQuiz is a quiz with the answer key removed.
type StudentQuiz struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Duration    int               `json:"duration"`
	Questions   []StudentQuestion `json:"questions"`
}

// StudentView strips every correctness flag from the quiz.
func (q Quiz) StudentView() StudentQuiz {
	view := StudentQuiz{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Duration:    q.Duration,
		Questions:   make([]StudentQuestion, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		options := make([]StudentOption, 0, len(question.Options))
		for _, opt := range question.Options {
			options = append(options, StudentOption{ID: opt.ID, Text: opt.Text})
		}
		view.Questions = append(view.Questions, StudentQuestion{
			ID:      question.ID,
			Text:    question.Text,
			Type:    question.Type,
			Points:  question.Weight(),
			Options: options,
		})
	}
	return view
}

// AttemptView is an attempt as its student sees it. Score and MaxScore shadow
// the embedded fields and stay nil until results are published.
type AttemptView struct {
	Attempt
	Score    *int `json:"score,omitempty"`
	MaxScore *int `json:"maxScore,omitempty"`
}

func NewAttemptView(a Attempt) AttemptView {
	view := AttemptView{Attempt: a.Clone()}
	view.Attempt.Score, view.Attempt.MaxScore = 0, 0
	if a.IsScorePublished {
		score, maxScore := a.Score, a.MaxScore
		view.Score = &score
		view.MaxScore = &maxScore
	}
	return view
}

// StudentAttempt pairs an attempt with its student-safe quiz.
type StudentAttempt struct {
	Attempt AttemptView `json:"attempt"`
	Quiz    StudentQuiz `json:"quiz"`
}

// QuizSummary lists a published quiz without its questions.
type QuizSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Duration      int    `json:"duration"`
	QuestionCount int    `json:"questionCount"`
	TotalPoints   int    `json:"totalPoints"`
}

func (q Quiz) Summary() QuizSummary {
	total := 0
	for _, question := range q.Questions {
		total += question.Weight()
	}
	return QuizSummary{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		Duration:      q.Duration,
		QuestionCount: len(q.Questions),
		TotalPoints:   total,
	}
}

// AttemptSummary is the short form listed on a quiz overview.
type AttemptSummary struct {
	ID          string     `json:"id"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	IsCompleted bool       `json:"isCompleted"`
	Score       *int       `json:"score,omitempty"`
	MaxScore    *int       `json:"maxScore,omitempty"`
}

// QuizOverview is what a student sees before starting or resuming.
type QuizOverview struct {
	Quiz     StudentQuiz      `json:"quiz"`
	Attempts []AttemptSummary `json:"attempts"`
}

// QuestionResult is the per-question breakdown shown after publication.
type QuestionResult struct {
	QuestionID string   `json:"questionId"`
	Selected   []string `json:"selectedOptions"`
	Correct    bool     `json:"correct"`
	Points     int      `json:"points"`
	Awarded    int      `json:"awarded"`
}

// AttemptResult is the student view of a completed attempt.
type AttemptResult struct {
	AttemptID              string           `json:"attemptId"`
	QuizID                 string           `json:"quizId"`
	QuizTitle              string           `json:"quizTitle"`
	StartTime              time.Time        `json:"startTime"`
	EndTime                *time.Time       `json:"endTime,omitempty"`
	SubmissionReason       SubmissionReason `json:"submissionReason"`
	SubmittedAutomatically bool             `json:"submittedAutomatically"`
	IsScorePublished       bool             `json:"isScorePublished"`
	Score                  *int             `json:"score,omitempty"`
	MaxScore               *int             `json:"maxScore,omitempty"`
	Questions              []QuestionResult `json:"questions,omitempty"`
}
