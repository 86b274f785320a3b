package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examind/examportal-backend/internal/catalog"
	"github.com/examind/examportal-backend/internal/middleware"
	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/response"
	"github.com/examind/examportal-backend/internal/session"
	"github.com/examind/examportal-backend/internal/validator"
)

// SessionHandler exposes the assessment session engine over HTTP.
type SessionHandler struct {
	manager *session.Manager
	catalog *catalog.Service
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager, catalogService *catalog.Service) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		catalog: catalogService,
	}
}

// Start godoc
// POST /api/v1/student/assessments/:assessment_id/session/start
// Starts (or resumes) the student's session. Idempotent.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	engine, err := h.manager.Start(c.Request.Context(), assessmentID, claims.UserID, nil)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAssessmentNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": engine.State()})
}

// GetPaper godoc
// GET /api/v1/student/assessments/:assessment_id/paper
// Returns the student-facing payload. Requires a running session so a paper
// can never be pulled without starting the attempt.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	engine, ok := h.engineFor(c)
	if !ok {
		return
	}

	payload, err := h.catalog.GetPayload(c.Request.Context(), engine.Definition().ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetState godoc
// GET /api/v1/student/assessments/:assessment_id/session
// Covers page reload: answered questions, cursor and remaining time.
func (h *SessionHandler) GetState(c *gin.Context) {
	engine, ok := h.engineFor(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, engine.State())
}

// RecordAnswer godoc
// PUT /api/v1/student/assessments/:assessment_id/session/answers/:question_id
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	engine, ok := h.engineFor(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ans := model.Answer{Text: req.Text, SelectedOption: req.SelectedOption}
	if prev, ok := engine.State().Answers[questionID]; ok {
		ans.FileReference = prev.FileReference
	}

	if err := engine.RecordAnswer(c.Request.Context(), questionID, ans); err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Navigate godoc
// PUT /api/v1/student/assessments/:assessment_id/session/position
// Out-of-bounds indices are accepted and ignored.
func (h *SessionHandler) Navigate(c *gin.Context) {
	engine, ok := h.engineFor(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	engine.SetIndex(c.Request.Context(), *req.Index)
	response.Success(c, http.StatusOK, gin.H{"current_question_index": engine.State().CurrentQuestionIndex})
}

// ReportSignal godoc
// POST /api/v1/student/assessments/:assessment_id/session/signals
func (h *SessionHandler) ReportSignal(c *gin.Context) {
	engine, ok := h.engineFor(c)
	if !ok {
		return
	}

	var req model.ReportSignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	engine.ReportSignal(session.SignalKind(req.Signal))
	response.Success(c, http.StatusOK, gin.H{"warnings": engine.State().Warnings})
}

// Submit godoc
// POST /api/v1/student/assessments/:assessment_id/session/submit
// Manual submission. A rejection leaves the session open for retry.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	engine, ok := h.engineFor(c)
	if !ok {
		return
	}

	result, err := engine.Submit(c.Request.Context(), session.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadySubmitted), errors.Is(err, session.ErrSubmitInFlight):
			response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
		case errors.Is(err, session.ErrTerminal):
			response.Fail(c, http.StatusGone, response.ErrSessionTerminal)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrSubmissionRejected)
		}
		return
	}

	h.manager.Remove(engine.Definition().ID, claims.UserID)

	data := gin.H{"status": "submitted"}
	if result != nil {
		data["result"] = result
	}
	response.Success(c, http.StatusOK, data)
}

// Exit godoc
// DELETE /api/v1/student/assessments/:assessment_id/session
// Explicit exit: the session and its recovery record are discarded.
func (h *SessionHandler) Exit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if !h.manager.Exit(c.Request.Context(), assessmentID, claims.UserID) {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotStarted)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "exited"})
}

// engineFor resolves the running engine for the authenticated student and
// the :assessment_id route param, failing the request when absent.
func (h *SessionHandler) engineFor(c *gin.Context) (*session.Engine, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	engine, ok := h.manager.Get(assessmentID, claims.UserID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotStarted)
		return nil, false
	}
	return engine, true
}

func (h *SessionHandler) failEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrUnknownOption):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	case errors.Is(err, session.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
