package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// CompletedTTL bounds how long the completion marker outlives a contest.
const CompletedTTL = 7 * 24 * time.Hour

// Queue hands results to the result worker through Redis. The enqueue, the
// completion marker and the monitor event go out in one transaction.
type Queue struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewQueue(rdb *redis.Client, log zerolog.Logger) *Queue {
	return &Queue{
		rdb: rdb,
		log: log.With().Str("component", "result_queue").Logger(),
	}
}

func (q *Queue) Submit(ctx context.Context, p *model.SubmissionPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	event, _ := json.Marshal(MonitorEvent{
		Type:       EventFinished,
		StudentID:  p.StudentID,
		Reason:     p.Reason,
		Grade:      p.Grade,
		Percentage: p.Percentage,
		At:         p.SubmittedAt,
	})

	pipe := q.rdb.TxPipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	pipe.Set(ctx, config.CacheKey.StudentContestCompletedKey(p.ContestID, p.StudentID), p.Reason, CompletedTTL)
	pipe.Publish(ctx, config.CacheKey.ContestMonitorChannel(p.ContestID), event)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue result: %w", err)
	}

	q.log.Info().
		Str("contest_id", p.ContestID).
		Int("student_id", p.StudentID).
		Str("grade", p.Grade).
		Msg("Result queued")
	return nil
}
