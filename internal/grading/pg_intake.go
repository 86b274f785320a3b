package grading

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/model"
)

// PgIntake records exam submissions in PostgreSQL. The submission row and its
// answer rows are written in one transaction so a partially recorded attempt
// can never be observed by graders.
type PgIntake struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPgIntake creates a PgIntake.
func NewPgIntake(pool *pgxpool.Pool, log zerolog.Logger) *PgIntake {
	return &PgIntake{
		pool: pool,
		log:  log.With().Str("component", "grading_intake").Logger(),
	}
}

// Submit inserts the submission and all answer records. Re-submitting the
// same assessment+student pair fails on the unique constraint, which keeps
// the intake side at-most-once as well.
func (g *PgIntake) Submit(ctx context.Context, p *model.SubmissionPayload) error {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var submissionID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO submissions (assessment_id, student_id, score)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		p.AssessmentID, p.SessionOwnerID, p.Score,
	).Scan(&submissionID)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	rows := make([][]interface{}, 0, len(p.Answers))
	for _, a := range p.Answers {
		rows = append(rows, []interface{}{
			submissionID, a.QuestionID, a.Text, a.FileReference, a.SelectedOption,
		})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"submission_answers"},
		[]string{"submission_id", "question_id", "answer_text", "file_reference", "selected_option"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy answers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	g.log.Info().
		Int("student_id", p.SessionOwnerID).
		Str("assessment_id", p.AssessmentID.String()).
		Int("answers", len(p.Answers)).
		Msg("Submission recorded")
	return nil
}
