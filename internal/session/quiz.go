package session

import (
	"github.com/examind/examportal-backend/internal/model"
)

// gradeLocked grades a quiz attempt against the definition's correct options.
// Quiz grading happens locally; the intake only records the attempt.
// Caller holds e.mu.
func (e *Engine) gradeLocked() *model.QuizResult {
	summary := make([]model.QuestionResult, 0, len(e.def.Questions))
	correct := 0

	for _, q := range e.def.Questions {
		selected := e.answers[q.ID].SelectedOption
		correctOpt := q.CorrectOption()

		line := model.QuestionResult{
			QuestionID:     q.ID,
			Prompt:         q.Prompt,
			SelectedOption: selected,
			Marks:          q.Marks,
		}
		if correctOpt != nil {
			id := correctOpt.ID
			line.CorrectOption = &id
			line.Correct = selected != nil && *selected == id
		}
		if line.Correct {
			correct++
		}
		summary = append(summary, line)
	}

	total := len(e.def.Questions)
	var score float64
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	return &model.QuizResult{
		AssessmentID: e.def.ID,
		CorrectCount: correct,
		Total:        total,
		Score:        score,
		Summary:      summary,
	}
}
