package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound  ErrCode = "NOT_FOUND"
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrAssessmentNotFound  ErrCode = "ASSESSMENT_NOT_FOUND"
	ErrSessionNotStarted   ErrCode = "SESSION_NOT_STARTED"
	ErrSessionSubmitted    ErrCode = "SESSION_ALREADY_SUBMITTED"
	ErrSessionTerminal     ErrCode = "SESSION_TERMINAL_FAILURE"
	ErrSubmissionRejected  ErrCode = "SUBMISSION_REJECTED"
	ErrUnknownQuestion     ErrCode = "UNKNOWN_QUESTION"
	ErrWrongAssessmentKind ErrCode = "WRONG_ASSESSMENT_KIND"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."
	case ErrNotFound:
		return "The resource was not found."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrAssessmentNotFound:
		return "The assessment does not exist or is not available."
	case ErrSessionNotStarted:
		return "There is no running session for this assessment."
	case ErrSessionSubmitted:
		return "This session has already been submitted."
	case ErrSessionTerminal:
		return "The timed-out submission could not be recorded. Please contact support."
	case ErrSubmissionRejected:
		return "Submission failed. You may try again."
	case ErrUnknownQuestion:
		return "The question does not belong to this assessment."
	case ErrWrongAssessmentKind:
		return "This operation does not apply to this assessment type."
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "The file type is not supported."
	case ErrFileTooLarge:
		return "The file exceeds the size limit."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
