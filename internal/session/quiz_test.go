package session

import (
	"context"
	"testing"

	"github.com/examind/examportal-backend/internal/model"
)

func TestQuizGradedLocallyOnSubmit(t *testing.T) {
	intake := &fakeIntake{}
	def := quizDef(10, 4)
	e := newTestEngine(t, def, intake, nil, nil)
	ctx := context.Background()

	// Correct option is always the first one.
	answer := func(q int, opt int) {
		id := def.Questions[q].Options[opt].ID
		if err := e.RecordAnswer(ctx, def.Questions[q].ID, model.Answer{SelectedOption: &id}); err != nil {
			t.Fatalf("record answer %d: %v", q, err)
		}
	}
	answer(0, 0) // correct
	answer(1, 2) // wrong
	answer(2, 0) // correct
	// question 3 left unanswered

	result, err := e.Submit(ctx, TriggerManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result == nil {
		t.Fatal("quiz submit should return a result")
	}
	if result.CorrectCount != 2 || result.Total != 4 {
		t.Fatalf("correct/total = %d/%d, want 2/4", result.CorrectCount, result.Total)
	}
	if result.Score != 50 {
		t.Fatalf("score = %v, want 50", result.Score)
	}
	if len(result.Summary) != 4 {
		t.Fatalf("summary lines = %d, want 4", len(result.Summary))
	}
	if result.Summary[3].Correct || result.Summary[3].SelectedOption != nil {
		t.Fatalf("unanswered line = %+v", result.Summary[3])
	}

	// The recorded attempt carries the locally computed score.
	p := intake.payloads[0]
	if p.Score == nil || *p.Score != 50 {
		t.Fatalf("payload score = %v, want 50", p.Score)
	}

	if got := e.Result(); got == nil || got.Score != 50 {
		t.Fatalf("stored result = %+v", got)
	}
}

func TestQuizResultAbsentForExam(t *testing.T) {
	intake := &fakeIntake{}
	e := newTestEngine(t, examDef(10, 2), intake, nil, nil)

	result, err := e.Submit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result != nil {
		t.Fatalf("exam submit returned a quiz result: %+v", result)
	}
	if p := intake.payloads[0]; p.Score != nil {
		t.Fatalf("exam payload score = %v, want nil", p.Score)
	}
}

func TestQuizScoreZeroQuestions(t *testing.T) {
	e := newTestEngine(t, quizDef(10, 0), &fakeIntake{}, nil, nil)

	result, err := e.Submit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 0 || result.Total != 0 {
		t.Fatalf("empty quiz result = %+v", result)
	}
}
