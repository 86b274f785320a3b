package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/response"
	"github.com/examind/examportal-backend/internal/service"
	"github.com/examind/examportal-backend/internal/session"
)

// AttachmentHandler handles file attachments on free-text answers.
type AttachmentHandler struct {
	sessions *SessionHandler
	media    *service.MediaService
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(sessions *SessionHandler, media *service.MediaService) *AttachmentHandler {
	return &AttachmentHandler{sessions: sessions, media: media}
}

// Upload godoc
// POST /api/v1/student/assessments/:assessment_id/session/answers/:question_id/attachment
func (h *AttachmentHandler) Upload(c *gin.Context) {
	engine, ok := h.sessions.engineFor(c)
	if !ok {
		return
	}
	if engine.Definition().Kind != model.AssessmentKindExam {
		response.Fail(c, http.StatusBadRequest, response.ErrWrongAssessmentKind)
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	ref, err := h.media.SaveUpload(file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	if err := engine.AttachFile(c.Request.Context(), questionID, ref); err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownQuestion):
			response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
		case errors.Is(err, session.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"file_reference": ref})
}
