package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// ViolationWorker drains persist_violations_queue into proctor_violations.
type ViolationWorker struct {
	pool  *pgxpool.Pool
	batch *batcher[violationPayload]
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{pool: pool}
	w.batch = newBatcher[violationPayload](config.WorkerKey.PersistViolationsQueue, rdb,
		log.With().Str("component", "violation_worker").Logger())
	w.batch.decode = decodeJSON[violationPayload]
	w.batch.bulk = w.bulkInsert
	w.batch.single = w.insertOne
	return w
}

type violationPayload struct {
	ContestID string    `json:"contest_id"`
	StudentID int       `json:"student_id"`
	Category  string    `json:"category"`
	Detail    string    `json:"detail"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

func (w *ViolationWorker) Start(ctx context.Context) { w.batch.run(ctx) }

var violationColumns = []string{"contest_id", "student_id", "category", "detail", "warning_count", "recorded_at"}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []violationPayload) error {
	rows := make([][]any, 0, len(batch))
	for _, p := range batch {
		contestID, err := uuid.Parse(p.ContestID)
		if err != nil {
			// The row-by-row path drops the bad row on its own.
			return err
		}
		rows = append(rows, []any{contestID, p.StudentID, p.Category, p.Detail, p.Count, p.At})
	}

	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{"proctor_violations"}, violationColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *ViolationWorker) insertOne(ctx context.Context, p violationPayload) error {
	contestID, err := uuid.Parse(p.ContestID)
	if err != nil {
		w.batch.log.Error().Str("contest_id", p.ContestID).Msg("Dropping violation with invalid contest id")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO proctor_violations (contest_id, student_id, category, detail, warning_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		contestID, p.StudentID, p.Category, p.Detail, p.Count, p.At,
	)
	return err
}
