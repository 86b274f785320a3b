package websocket

import "github.com/google/uuid"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSignal   Action = "signal"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape; fields are used
// depending on Action.
type RequestPayload struct {
	Action Action `json:"action"`
	// answer
	QID            string     `json:"q_id,omitempty"`
	Text           string     `json:"text,omitempty"`
	SelectedOption *uuid.UUID `json:"selected_option,omitempty"`
	// navigate
	Index int `json:"index"`
	// signal
	Signal string `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventStarted   Event = "started"
	EventSaved     Event = "saved"
	EventAutoSaved Event = "auto_saved"
	EventWarning   Event = "warning"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// ResponsePayload is the single server message envelope.
type ResponsePayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}
