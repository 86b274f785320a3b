package session

import (
	"github.com/google/uuid"

	"github.com/examind/examportal-backend/internal/model"
)

// Trigger identifies what initiated a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// SignalKind is an advisory integrity signal type. Signals never block input
// or end the session; they only raise a one-way warning flag.
type SignalKind string

const (
	SignalTabSwitch  SignalKind = "tab_switch"
	SignalScreenshot SignalKind = "screenshot"
)

// Warnings are the one-way advisory flags of a session.
type Warnings struct {
	TabSwitchRaised  bool `json:"tab_switch_raised"`
	ScreenshotRaised bool `json:"screenshot_raised"`
}

// StateView is a point-in-time copy of the session state, safe to hand out.
type StateView struct {
	AssessmentID         uuid.UUID                   `json:"assessment_id"`
	Kind                 model.AssessmentKind        `json:"kind"`
	Answers              map[uuid.UUID]model.Answer  `json:"answers"`
	RemainingSeconds     int                         `json:"remaining_seconds"`
	CurrentQuestionIndex int                         `json:"current_question_index"`
	Submitted            bool                        `json:"submitted"`
	Warnings             Warnings                    `json:"warnings"`
}

// SubmitOutcome describes how a submission attempt ended.
type SubmitOutcome struct {
	Trigger Trigger
	Success bool
	// Terminal is set when a timed-out submission failed: the session is
	// closed anyway and no further attempts will be made.
	Terminal bool
	Err      error
	// Result is populated for successful quiz submissions only.
	Result *model.QuizResult
}

// Events is the boundary between the engine and whatever surface presents a
// session. Detection lives in the engine; presentation lives behind this
// interface, so the engine is testable without one. Implementations must not
// block: callbacks run on engine goroutines.
type Events interface {
	SessionStarted(view StateView)
	ProgressSaved(remainingSeconds int)
	WarningRaised(kind SignalKind)
	SessionSubmitted(outcome SubmitOutcome)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) SessionStarted(StateView)      {}
func (NopEvents) ProgressSaved(int)             {}
func (NopEvents) WarningRaised(SignalKind)      {}
func (NopEvents) SessionSubmitted(SubmitOutcome) {}
