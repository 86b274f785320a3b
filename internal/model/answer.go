package model

import (
	"github.com/google/uuid"
)

// Answer is the student's current answer to one question. Free-text questions
// use Text plus an optional uploaded-file reference; multiple-choice questions
// use SelectedOption. File answers carry a reference only — the bytes live in
// file storage.
type Answer struct {
	Text           string     `json:"text,omitempty"`
	FileReference  string     `json:"file_reference,omitempty"`
	SelectedOption *uuid.UUID `json:"selected_option,omitempty"`
}

// Empty reports whether the answer carries no content at all.
func (a Answer) Empty() bool {
	return a.Text == "" && a.FileReference == "" && a.SelectedOption == nil
}

// AnswerRecord is one entry of a submission payload. Unanswered questions are
// present with zero values so the grading side sees every question.
type AnswerRecord struct {
	QuestionID     uuid.UUID  `json:"question_id"`
	Text           string     `json:"text,omitempty"`
	FileReference  string     `json:"file_reference,omitempty"`
	SelectedOption *uuid.UUID `json:"selected_option,omitempty"`
}

// SubmissionPayload is what the session engine hands to the grading intake.
type SubmissionPayload struct {
	SessionOwnerID int            `json:"session_owner_id"`
	AssessmentID   uuid.UUID      `json:"assessment_id"`
	Kind           AssessmentKind `json:"kind"`
	Answers        []AnswerRecord `json:"answers"`
	// Score is only set for quiz submissions, which are graded locally
	// before the attempt is recorded.
	Score *float64 `json:"score,omitempty"`
}

// QuestionResult is one line of a locally graded quiz summary.
type QuestionResult struct {
	QuestionID     uuid.UUID  `json:"question_id"`
	Prompt         string     `json:"prompt"`
	SelectedOption *uuid.UUID `json:"selected_option,omitempty"`
	CorrectOption  *uuid.UUID `json:"correct_option,omitempty"`
	Correct        bool       `json:"correct"`
	Marks          int        `json:"marks"`
}

// QuizResult is the summary returned to the student after a quiz submission.
type QuizResult struct {
	AssessmentID uuid.UUID        `json:"assessment_id"`
	CorrectCount int              `json:"correct_count"`
	Total        int              `json:"total"`
	Score        float64          `json:"score"`
	Summary      []QuestionResult `json:"summary"`
}
