package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/middleware"
	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/session"
	ws "github.com/examind/examportal-backend/internal/websocket"
)

const wsRequestTimeout = 10 * time.Second

// WSHandler streams a running session over a websocket: countdown events,
// autosave confirmations and warnings flow out, while answers, navigation
// and submission flow in on the same connection.
type WSHandler struct {
	manager  *session.Manager
	upgrader gorilla.Upgrader
	log      zerolog.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, cfg *config.Config, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		manager:  manager,
		upgrader: buildUpgrader(cfg.AllowedOrigins),
		log:      log.With().Str("component", "ws_handler").Logger(),
	}
}

func buildUpgrader(allowedOrigins []string) gorilla.Upgrader {
	return gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// Session godoc
// GET /ws/v1/assessments/:assessment_id/session
// Attaches to the student's running session. The engine must already have
// been started over HTTP.
func (h *WSHandler) Session(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	engine, ok := h.manager.Get(assessmentID, claims.UserID)
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	conn := ws.Wrap(rawConn)
	defer rawConn.Close()

	listener := &wsEvents{conn: conn}
	engine.SetEvents(listener)
	defer engine.DetachEvents(listener)

	conn.WriteEvent(ws.EventStarted, engine.State())
	h.serve(c, conn, engine)
}

func (h *WSHandler) serve(c *gin.Context, conn *ws.Conn, engine *session.Engine) {
	claims := middleware.GetClaims(c)
	for {
		var req ws.RequestPayload
		if err := conn.ReadJSON(&req); err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("Websocket read failed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), wsRequestTimeout)
		done := h.dispatch(ctx, conn, engine, claims.UserID, req)
		cancel()
		if done {
			return
		}
	}
}

// dispatch handles one client message. Returns true when the connection
// should close.
func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, engine *session.Engine, studentID int, req ws.RequestPayload) bool {
	switch req.Action {
	case ws.ActionAnswer:
		questionID, err := uuid.Parse(req.QID)
		if err != nil {
			conn.WriteError("invalid question id")
			return false
		}
		ans := model.Answer{Text: req.Text, SelectedOption: req.SelectedOption}
		if prev, ok := engine.State().Answers[questionID]; ok {
			ans.FileReference = prev.FileReference
		}
		if err := engine.RecordAnswer(ctx, questionID, ans); err != nil {
			conn.WriteError(err.Error())
			return false
		}
		conn.WriteEvent(ws.EventSaved, gin.H{"q_id": req.QID})

	case ws.ActionNavigate:
		engine.SetIndex(ctx, req.Index)

	case ws.ActionSignal:
		engine.ReportSignal(session.SignalKind(req.Signal))

	case ws.ActionSubmit:
		_, err := engine.Submit(ctx, session.TriggerManual)
		if err != nil {
			// The submitted event, including the failure, already went out
			// through the engine listener.
			return errors.Is(err, session.ErrAlreadySubmitted) || errors.Is(err, session.ErrTerminal)
		}
		h.manager.Remove(engine.Definition().ID, studentID)
		return true

	case ws.ActionPing:
		conn.WriteEvent(ws.EventPong, nil)

	default:
		conn.WriteError("unknown action")
	}
	return false
}

// wsEvents forwards engine events to the websocket peer. Write failures are
// dropped: the read loop notices a dead connection on its own.
type wsEvents struct {
	conn *ws.Conn
}

func (w *wsEvents) SessionStarted(view session.StateView) {
	w.conn.WriteEvent(ws.EventStarted, view)
}

func (w *wsEvents) ProgressSaved(remainingSeconds int) {
	w.conn.WriteEvent(ws.EventAutoSaved, gin.H{"remaining_seconds": remainingSeconds})
}

func (w *wsEvents) WarningRaised(kind session.SignalKind) {
	w.conn.WriteEvent(ws.EventWarning, gin.H{"signal": string(kind)})
}

func (w *wsEvents) SessionSubmitted(outcome session.SubmitOutcome) {
	data := gin.H{
		"trigger":  string(outcome.Trigger),
		"success":  outcome.Success,
		"terminal": outcome.Terminal,
	}
	if outcome.Result != nil {
		data["result"] = outcome.Result
	}
	w.conn.WriteEvent(ws.EventSubmitted, data)
}
