// Package grading holds the intake boundary the session engine submits
// through. Exam submissions are recorded synchronously so the engine can
// report a definite outcome; quiz attempts are graded in the engine and
// only recorded, asynchronously, through a queue.
package grading

import (
	"context"

	"github.com/examind/examportal-backend/internal/model"
)

// Intake durably records a submitted attempt for later evaluation.
// Implementations must be safe for concurrent use.
type Intake interface {
	Submit(ctx context.Context, payload *model.SubmissionPayload) error
}
