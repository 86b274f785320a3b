package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/grading"
	"github.com/examind/examportal-backend/internal/model"
)

const attemptPollTimeout = time.Second

// AttemptWorker consumes record_attempts_queue and persists graded quiz
// attempts to PostgreSQL. Scoring already happened in the session engine;
// this loop only makes the record durable.
type AttemptWorker struct {
	intake grading.Intake
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewAttemptWorker creates a new AttemptWorker.
func NewAttemptWorker(intake grading.Intake, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		intake: intake,
		rdb:    rdb,
		log:    log.With().Str("component", "attempt_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AttemptWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, attemptPollTimeout, config.WorkerKey.RecordAttemptsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload model.SubmissionPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		// Malformed JSON cannot be retried. Log and discard.
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed attempt")
		return
	}

	if err := w.intake.Submit(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Int("student_id", payload.SessionOwnerID).
			Str("assessment_id", payload.AssessmentID.String()).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.RecordAttemptsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// drain persists all remaining items in the queue before shutdown.
func (w *AttemptWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.RecordAttemptsQueue).Result()
		if err != nil {
			break
		}

		var payload model.SubmissionPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.intake.Submit(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.RecordAttemptsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining attempts")
	}
}
