package model

import (
	"time"

	"github.com/google/uuid"
)

// AssessmentKind distinguishes the two session flavors the portal conducts.
type AssessmentKind string

const (
	// AssessmentKindExam is a free-text assessment with durable progress
	// recovery and optional file attachments per answer.
	AssessmentKindExam AssessmentKind = "EXAM"
	// AssessmentKindQuiz is a multiple-choice assessment graded locally on
	// submission; no recovery persistence.
	AssessmentKindQuiz AssessmentKind = "QUIZ"
)

// QuestionType enumerates question answer shapes.
type QuestionType string

const (
	QuestionTypeFreeText       QuestionType = "FREE_TEXT"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
)

// Option is a single multiple-choice option. Correct is never serialized to
// the student-facing payload.
type Option struct {
	ID      uuid.UUID `json:"id"`
	Text    string    `json:"text"`
	Correct bool      `json:"-"`
}

// Question is one question of an assessment definition.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	Prompt       string       `json:"prompt"`
	QuestionType QuestionType `json:"question_type"`
	Marks        int          `json:"marks"`
	Options      []Option     `json:"options,omitempty"`
	OrderNum     int          `json:"order_num"`
}

// CorrectOption returns the correct option for a multiple-choice question,
// or nil for free-text questions and malformed definitions.
func (q *Question) CorrectOption() *Option {
	for i := range q.Options {
		if q.Options[i].Correct {
			return &q.Options[i]
		}
	}
	return nil
}

// AssessmentDefinition is the immutable definition a session runs against.
// Once loaded it is never mutated for the session's lifetime.
type AssessmentDefinition struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	Kind            AssessmentKind `json:"kind"`
	DurationMinutes int            `json:"duration_minutes"`
	Questions       []Question     `json:"questions"`
	CreatedAt       time.Time      `json:"created_at"`
}

// InitialSeconds is the full countdown budget for a fresh session.
func (d *AssessmentDefinition) InitialSeconds() int {
	return d.DurationMinutes * 60
}

// HasQuestion reports whether id belongs to this definition.
func (d *AssessmentDefinition) HasQuestion(id uuid.UUID) bool {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return true
		}
	}
	return false
}

// AssessmentPayload is the cached student-facing view of a definition.
// Correct options are stripped before it ever leaves the catalog.
type AssessmentPayload struct {
	AssessmentID    uuid.UUID            `json:"assessment_id"`
	Title           string               `json:"title"`
	Kind            AssessmentKind       `json:"kind"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question as shown to the student: no correctness.
type QuestionForStudent struct {
	ID       uuid.UUID    `json:"id"`
	Prompt   string       `json:"prompt"`
	Type     QuestionType `json:"question_type"`
	Marks    int          `json:"marks"`
	Options  []OptionView `json:"options,omitempty"`
	OrderNum int          `json:"order_num"`
}

// OptionView is an option without the correctness flag.
type OptionView struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}
