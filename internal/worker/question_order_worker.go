package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// QuestionOrderWorker records the shuffled display order handed to each
// student so results can be audited against what was shown.
type QuestionOrderWorker struct {
	pool  *pgxpool.Pool
	batch *batcher[questionOrderPayload]
}

func NewQuestionOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *QuestionOrderWorker {
	w := &QuestionOrderWorker{pool: pool}
	w.batch = newBatcher[questionOrderPayload](config.WorkerKey.PersistQuestionOrderQueue, rdb,
		log.With().Str("component", "question_order_worker").Logger())
	w.batch.decode = decodeJSON[questionOrderPayload]
	w.batch.bulk = w.bulkUpsert
	w.batch.single = w.persistSingle
	return w
}

type questionOrderPayload struct {
	ContestID string  `json:"contest_id"`
	StudentID int     `json:"student_id"`
	Order     [][]int `json:"order"`
}

func (w *QuestionOrderWorker) Start(ctx context.Context) { w.batch.run(ctx) }

// bulkUpsert keeps the first order recorded per student. A reload never
// reshuffles, so later duplicates are identical.
func (w *QuestionOrderWorker) bulkUpsert(ctx context.Context, batch []questionOrderPayload) error {
	contestIDs := make([]uuid.UUID, 0, len(batch))
	students := make([]int, 0, len(batch))
	orders := make([]string, 0, len(batch))

	for _, p := range batch {
		cID, err := uuid.Parse(p.ContestID)
		if err != nil {
			return err
		}
		ob, err := json.Marshal(p.Order)
		if err != nil {
			return err
		}
		contestIDs = append(contestIDs, cID)
		students = append(students, p.StudentID)
		orders = append(orders, string(ob))
	}

	_, err := w.pool.Exec(ctx, `
		INSERT INTO question_orders (contest_id, student_id, question_order)
		SELECT * FROM UNNEST($1::uuid[], $2::int[], $3::jsonb[])
		ON CONFLICT (contest_id, student_id) DO NOTHING`,
		contestIDs, students, orders)
	return err
}

func (w *QuestionOrderWorker) persistSingle(ctx context.Context, p questionOrderPayload) error {
	cID, err := uuid.Parse(p.ContestID)
	if err != nil {
		w.batch.log.Error().Str("contest_id", p.ContestID).Msg("Dropping question order with invalid contest id")
		return nil
	}
	ob, err := json.Marshal(p.Order)
	if err != nil {
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO question_orders (contest_id, student_id, question_order)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (contest_id, student_id) DO NOTHING`,
		cID, p.StudentID, string(ob),
	)
	return err
}
