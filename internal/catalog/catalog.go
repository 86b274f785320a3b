// Package catalog is the assessment catalog collaborator: the session loader
// fetches immutable assessment definitions through it, and the HTTP surface
// serves the student-facing payload (correct options stripped) from its
// Redis cache.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/repository"
)

// ErrNotFound is returned when the assessment does not exist.
var ErrNotFound = repository.ErrAssessmentNotFound

// Service loads assessment definitions from PostgreSQL and keeps the
// student-facing payload cached in Redis.
type Service struct {
	repo *repository.AssessmentRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewService creates a catalog Service.
func NewService(repo *repository.AssessmentRepository, rdb *redis.Client, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "catalog").Logger(),
	}
}

// FetchByID loads the full definition, correct options included. This is the
// session loader's entry point; the definition never reaches a client as-is.
func (s *Service) FetchByID(ctx context.Context, id uuid.UUID) (*model.AssessmentDefinition, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPayload returns the student-facing payload, from Redis when warm and
// falling back to PostgreSQL with a self-heal write on a cache miss.
func (s *Service) GetPayload(ctx context.Context, id uuid.UUID) (*model.AssessmentPayload, error) {
	key := config.CacheKey.AssessmentPayloadKey(id.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var payload model.AssessmentPayload
		if jsonErr := json.Unmarshal(raw, &payload); jsonErr == nil {
			return &payload, nil
		}
		// Corrupt cache entry: fall through and rebuild it.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("payload cache read: %w", err)
	}

	def, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := buildPayload(def)
	if err := s.warm(ctx, def, payload); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Cache self-heal failed")
	}
	return payload, nil
}

// PrewarmAll loads every assessment payload into Redis. Called before the
// server accepts traffic so a thundering herd never races lazy loading.
func (s *Service) PrewarmAll(ctx context.Context) error {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list assessments: %w", err)
	}

	warmed := 0
	for _, id := range ids {
		def, err := s.repo.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Prewarm skip")
			continue
		}
		if err := s.warm(ctx, def, buildPayload(def)); err != nil {
			return err
		}
		warmed++
	}

	s.log.Info().Int("count", warmed).Msg("Assessment caches prewarmed")
	return nil
}

func (s *Service) warm(ctx context.Context, def *model.AssessmentDefinition, payload *model.AssessmentPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.AssessmentPayloadKey(def.ID.String()), raw, 0).Err(); err != nil {
		return fmt.Errorf("cache payload: %w", err)
	}
	return nil
}

// buildPayload strips correctness before the definition faces a student.
func buildPayload(def *model.AssessmentDefinition) *model.AssessmentPayload {
	questions := make([]model.QuestionForStudent, len(def.Questions))
	for i, q := range def.Questions {
		sq := model.QuestionForStudent{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Type:     q.QuestionType,
			Marks:    q.Marks,
			OrderNum: q.OrderNum,
		}
		for _, opt := range q.Options {
			sq.Options = append(sq.Options, model.OptionView{ID: opt.ID, Text: opt.Text})
		}
		questions[i] = sq
	}
	return &model.AssessmentPayload{
		AssessmentID:    def.ID,
		Title:           def.Title,
		Kind:            def.Kind,
		DurationMinutes: def.DurationMinutes,
		Questions:       questions,
	}
}
