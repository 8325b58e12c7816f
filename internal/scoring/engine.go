// Package scoring grades stored selections against a quiz answer key.
package scoring

import "quiz-attempt-service/internal/domain"

// CalculateScore grades the attempt against the given question set and returns (score, maxScore).
// Questions are read as they exist now, not as they were when the attempt started.
func CalculateScore(attempt domain.Attempt, questions []domain.Question) (int, int) {
	score, maxScore := 0, 0
	for _, question := range questions {
		points := question.Weight()
		maxScore += points
		// A missing entry is an empty selection.
		if Grade(question, attempt.Answers[question.ID]) {
			score += points
		}
	}
	return score, maxScore
}

// Breakdown grades each question individually, in quiz order.
func Breakdown(attempt domain.Attempt, questions []domain.Question) []domain.QuestionResult {
	results := make([]domain.QuestionResult, 0, len(questions))
	for _, question := range questions {
		selected := attempt.Answers[question.ID]
		result := domain.QuestionResult{
			QuestionID: question.ID,
			Selected:   append([]string{}, selected...),
			Points:     question.Weight(),
		}
		if Grade(question, selected) {
			result.Correct = true
			result.Awarded = result.Points
		}
		results = append(results, result)
	}
	return results
}

// Grade reports whether selected fully answers the question.
func Grade(question domain.Question, selected []string) bool {
	correct := correctOptions(question)
	switch question.Type {
	case domain.QuestionMultipleChoice:
		// An empty selection never scores, even against a key with no correct options.
		if len(selected) == 0 {
			return false
		}
		return setEqual(correct, toSet(selected))
	case domain.QuestionTrueFalse:
		if len(selected) != 1 {
			return false
		}
		_, ok := correct[selected[0]]
		return ok
	default:
		return false
	}
}

func correctOptions(question domain.Question) map[string]struct{} {
	out := make(map[string]struct{}, len(question.Options))
	for _, opt := range question.Options {
		if opt.Correct {
			out[opt.ID] = struct{}{}
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
