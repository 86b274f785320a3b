package model

import "github.com/google/uuid"

// RecordAnswerRequest is the payload for answering a question.
type RecordAnswerRequest struct {
	Text           string     `json:"text" binding:"omitempty,max=20000"`
	SelectedOption *uuid.UUID `json:"selected_option" binding:"omitempty"`
}

// NavigateRequest is the payload for moving the current-question cursor.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// ReportSignalRequest is the payload for an advisory integrity signal.
type ReportSignalRequest struct {
	Signal string `json:"signal" binding:"required,oneof=tab_switch screenshot"`
}
