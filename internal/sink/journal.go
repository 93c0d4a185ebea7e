package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Journal pushes session activity onto the worker queues and forwards
// violations to the contest monitor channel.
type Journal struct {
	rdb *redis.Client
}

func NewJournal(rdb *redis.Client) *Journal {
	return &Journal{rdb: rdb}
}

func (j *Journal) Violation(ctx context.Context, e proctor.ViolationEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	event, _ := json.Marshal(MonitorEvent{
		Type:      EventViolation,
		StudentID: e.StudentID,
		Category:  string(e.Category),
		Count:     e.Count,
		At:        e.At,
	})

	pipe := j.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw)
	pipe.Publish(ctx, config.CacheKey.ContestMonitorChannel(e.ContestID), event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal violation: %w", err)
	}
	return nil
}

func (j *Journal) Answer(ctx context.Context, e proctor.AnswerEntry) error {
	return j.push(ctx, config.WorkerKey.PersistAnswersQueue, e)
}

func (j *Journal) QuestionOrder(ctx context.Context, e proctor.OrderEntry) error {
	return j.push(ctx, config.WorkerKey.PersistQuestionOrderQueue, e)
}

func (j *Journal) push(ctx context.Context, queue string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := j.rdb.RPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("push %s: %w", queue, err)
	}
	return nil
}
