package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize       = 50
	BatchTimeout    = 2 * time.Second
	PollTimeout     = 1 * time.Second // Must be >= 1s to satisfy Redis
	shutdownTimeout = 5 * time.Second
	errorBackoff    = 2 * time.Second
)

type queued[T any] struct {
	item T
	raw  string
}

// batcher drains one Redis list into PostgreSQL. Items are flushed when the
// batch is full or old enough: the bulk write is tried first, then each item
// on its own, and whatever still fails goes back on the queue.
type batcher[T any] struct {
	queue string
	rdb   *redis.Client
	log   zerolog.Logger

	decode func(raw string) (T, error)
	bulk   func(ctx context.Context, items []T) error // optional
	single func(ctx context.Context, item T) error

	requeue func(ctx context.Context, raws []string) error
	sleep   func(time.Duration)
}

func newBatcher[T any](queue string, rdb *redis.Client, log zerolog.Logger) *batcher[T] {
	b := &batcher[T]{queue: queue, rdb: rdb, log: log, sleep: time.Sleep}
	b.requeue = b.pushBack
	return b
}

func (b *batcher[T]) run(ctx context.Context) {
	b.log.Info().Str("queue", b.queue).Msg("Worker started")

	batch := make([]queued[T], 0, BatchSize)
	lastFlush := time.Now()

	for {
		if ctx.Err() != nil {
			b.shutdown(batch)
			return
		}

		if len(batch) > 0 && (len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			b.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		// BLPop returns immediately if data exists.
		result, err := b.rdb.BLPop(ctx, PollTimeout, b.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.log.Error().Err(err).Msg("Redis connection error, backing off")
			b.sleep(errorBackoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		item, err := b.decode(result[1])
		if err != nil {
			// Malformed JSON can never succeed. Log and discard.
			b.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed payload")
			continue
		}
		batch = append(batch, queued[T]{item: item, raw: result[1]})
	}
}

func (b *batcher[T]) flush(ctx context.Context, batch []queued[T]) {
	if len(batch) == 0 {
		return
	}

	if b.bulk != nil {
		items := make([]T, len(batch))
		for i, q := range batch {
			items[i] = q.item
		}
		err := b.bulk(ctx, items)
		if err == nil {
			return
		}
		b.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk write failed, attempting row-by-row recovery")
	}

	var failed []string
	for _, q := range batch {
		if err := b.single(ctx, q.item); err != nil {
			b.log.Error().Err(err).Msg("Write failed, requeueing")
			failed = append(failed, q.raw)
		}
	}
	if len(failed) == 0 {
		return
	}

	if err := b.requeue(ctx, failed); err != nil {
		b.log.Error().Err(err).Int("count", len(failed)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	b.log.Info().Int("count", len(failed)).Msg("Requeued failed items back to Redis")
	// Back off so a dead database is not hammered.
	b.sleep(errorBackoff)
}

func (b *batcher[T]) pushBack(ctx context.Context, raws []string) error {
	pipe := b.rdb.Pipeline()
	for _, raw := range raws {
		pipe.RPush(ctx, b.queue, raw)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// shutdown flushes the buffer and whatever is still queued, within a bound.
func (b *batcher[T]) shutdown(batch []queued[T]) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	drained := 0
	for ctx.Err() == nil {
		raw, err := b.rdb.LPop(ctx, b.queue).Result()
		if err != nil {
			break
		}
		item, err := b.decode(raw)
		if err != nil {
			continue
		}
		batch = append(batch, queued[T]{item: item, raw: raw})
		drained++
	}

	b.flush(ctx, batch)
	b.log.Info().Int("flushed", len(batch)).Int("drained", drained).Msg("Worker stopped")
}
