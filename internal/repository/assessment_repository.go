package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examind/examportal-backend/internal/model"
)

// ErrAssessmentNotFound is returned when no published assessment matches.
var ErrAssessmentNotFound = errors.New("assessment not found")

// AssessmentRepository handles assessment definition data access.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

// GetByID loads a full assessment definition: questions in order, options
// included. Returns ErrAssessmentNotFound when it does not exist.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentDefinition, error) {
	def := &model.AssessmentDefinition{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, kind, duration_minutes, created_at
		 FROM assessments
		 WHERE id = $1`, id,
	).Scan(&def.ID, &def.Title, &def.Kind, &def.DurationMinutes, &def.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}

	questions, err := r.loadQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	def.Questions = questions
	return def, nil
}

// ListIDs returns the identifiers of all assessments, used for cache prewarm.
func (r *AssessmentRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM assessments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AssessmentRepository) loadQuestions(ctx context.Context, assessmentID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, question_type, marks, order_num
		 FROM questions
		 WHERE assessment_id = $1
		 ORDER BY order_num`, assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.QuestionType, &q.Marks, &q.OrderNum); err != nil {
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.option_text, o.is_correct
		 FROM options o
		 JOIN questions q ON o.question_id = q.id
		 WHERE q.assessment_id = $1
		 ORDER BY o.order_num`, assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt model.Option
		var questionID uuid.UUID
		if err := optRows.Scan(&opt.ID, &questionID, &opt.Text, &opt.Correct); err != nil {
			return nil, err
		}
		if i, ok := index[questionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	return questions, optRows.Err()
}
