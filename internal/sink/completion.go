package sink

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Marked wraps a sink that does not touch Redis itself, writing the
// completion marker and the monitor event after a successful delivery.
type Marked struct {
	next proctor.ResultSink
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewMarked(next proctor.ResultSink, rdb *redis.Client, log zerolog.Logger) *Marked {
	return &Marked{next: next, rdb: rdb, log: log}
}

func (m *Marked) Submit(ctx context.Context, p *model.SubmissionPayload) error {
	if err := m.next.Submit(ctx, p); err != nil {
		return err
	}

	event, _ := json.Marshal(MonitorEvent{
		Type:       EventFinished,
		StudentID:  p.StudentID,
		Reason:     p.Reason,
		Grade:      p.Grade,
		Percentage: p.Percentage,
		At:         p.SubmittedAt,
	})

	// The result is already delivered, so marker failures are only logged.
	pipe := m.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.StudentContestCompletedKey(p.ContestID, p.StudentID), p.Reason, CompletedTTL)
	pipe.Publish(ctx, config.CacheKey.ContestMonitorChannel(p.ContestID), event)
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.Warn().Err(err).
			Str("contest_id", p.ContestID).
			Int("student_id", p.StudentID).
			Msg("Failed to mark contest completed")
	}
	return nil
}
