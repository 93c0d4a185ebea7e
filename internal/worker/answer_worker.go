package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// AnswerWorker consumes persist_answers_queue and UPSERTs answers to PostgreSQL.
type AnswerWorker struct {
	pool  *pgxpool.Pool
	batch *batcher[answerPayload]
}

func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	w := &AnswerWorker{pool: pool}
	w.batch = newBatcher[answerPayload](config.WorkerKey.PersistAnswersQueue, rdb,
		log.With().Str("component", "answer_worker").Logger())
	w.batch.decode = decodeJSON[answerPayload]
	// Answers go one by one so a later selection lands after an earlier one.
	w.batch.single = w.persistAnswer
	return w
}

type answerPayload struct {
	ContestID string    `json:"contest_id"`
	StudentID int       `json:"student_id"`
	Section   int       `json:"section"`
	Question  int       `json:"question"`
	Answer    string    `json:"answer"`
	At        time.Time `json:"at"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) { w.batch.run(ctx) }

// persistAnswer keeps the latest selection per question. Out-of-order
// deliveries never overwrite a newer answer.
func (w *AnswerWorker) persistAnswer(ctx context.Context, p answerPayload) error {
	contestID, err := uuid.Parse(p.ContestID)
	if err != nil {
		w.batch.log.Error().Str("contest_id", p.ContestID).Msg("Dropping answer with invalid contest id")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO student_answers (contest_id, student_id, section_index, question_index, answer, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (contest_id, student_id, section_index, question_index) DO UPDATE
		 SET answer = EXCLUDED.answer, answered_at = EXCLUDED.answered_at
		 WHERE student_answers.answered_at <= EXCLUDED.answered_at`,
		contestID, p.StudentID, p.Section, p.Question, p.Answer, p.At,
	)
	return err
}

func decodeJSON[T any](raw string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(raw), &v)
	return v, err
}
