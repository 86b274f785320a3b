package grading

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/model"
)

// QueueRecorder pushes graded quiz attempts onto a Redis queue drained by the
// attempt worker. Scoring already happened in the engine, so recording does
// not need to block the student on PostgreSQL.
type QueueRecorder struct {
	rdb *redis.Client
}

// NewQueueRecorder creates a QueueRecorder.
func NewQueueRecorder(rdb *redis.Client) *QueueRecorder {
	return &QueueRecorder{rdb: rdb}
}

func (r *QueueRecorder) Submit(ctx context.Context, p *model.SubmissionPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := r.rdb.RPush(ctx, config.WorkerKey.RecordAttemptsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue attempt: %w", err)
	}
	return nil
}
