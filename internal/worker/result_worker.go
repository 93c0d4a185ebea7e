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
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResultWorker persists submitted results from persist_results_queue into
// assessment_results.
type ResultWorker struct {
	pool  *pgxpool.Pool
	batch *batcher[resultRow]
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{pool: pool}
	w.batch = newBatcher[resultRow](config.WorkerKey.PersistResultsQueue, rdb,
		log.With().Str("component", "result_worker").Logger())
	w.batch.decode = decodeResult
	w.batch.bulk = w.bulkUpsert
	w.batch.single = w.persistSingle
	return w
}

// resultRow keeps the raw payload next to the decoded one; the raw JSON is
// stored as-is in the payload column.
type resultRow struct {
	payload model.SubmissionPayload
	raw     string
}

func decodeResult(raw string) (resultRow, error) {
	var r resultRow
	if err := json.Unmarshal([]byte(raw), &r.payload); err != nil {
		return r, err
	}
	r.raw = raw
	return r, nil
}

func (w *ResultWorker) Start(ctx context.Context) { w.batch.run(ctx) }

const resultColumns = `
	contest_id, student_id, reason, total_questions, correct_answers,
	percentage, grade, fullscreen_warnings, tab_switch_warnings,
	noise_warnings, face_warnings, payload, submitted_at`

// bulkUpsert writes the whole batch with UNNEST. A result is written once;
// duplicates from requeues are ignored.
func (w *ResultWorker) bulkUpsert(ctx context.Context, batch []resultRow) error {
	n := len(batch)
	var (
		contestIDs   = make([]uuid.UUID, 0, n)
		students     = make([]int, 0, n)
		reasons      = make([]string, 0, n)
		totals       = make([]int, 0, n)
		corrects     = make([]int, 0, n)
		percentages  = make([]float64, 0, n)
		grades       = make([]string, 0, n)
		fullscreen   = make([]int, 0, n)
		tabSwitch    = make([]int, 0, n)
		noise        = make([]int, 0, n)
		face         = make([]int, 0, n)
		payloads     = make([]string, 0, n)
		submittedAts = make([]time.Time, 0, n)
	)

	for _, r := range batch {
		p := r.payload
		cID, err := uuid.Parse(p.ContestID)
		if err != nil {
			return err
		}
		contestIDs = append(contestIDs, cID)
		students = append(students, p.StudentID)
		reasons = append(reasons, p.Reason)
		totals = append(totals, p.TotalQuestions)
		corrects = append(corrects, p.CorrectAnswers)
		percentages = append(percentages, p.Percentage)
		grades = append(grades, p.Grade)
		fullscreen = append(fullscreen, p.FullscreenWarning)
		tabSwitch = append(tabSwitch, p.TabSwitchWarning)
		noise = append(noise, p.NoiseWarning)
		face = append(face, p.FaceWarning)
		payloads = append(payloads, r.raw)
		submittedAts = append(submittedAts, p.SubmittedAt)
	}

	_, err := w.pool.Exec(ctx, `
		INSERT INTO assessment_results (`+resultColumns+`)
		SELECT * FROM UNNEST(
			$1::uuid[], $2::int[], $3::text[], $4::int[], $5::int[],
			$6::float8[], $7::text[], $8::int[], $9::int[],
			$10::int[], $11::int[], $12::jsonb[], $13::timestamptz[]
		)
		ON CONFLICT (contest_id, student_id) DO NOTHING`,
		contestIDs, students, reasons, totals, corrects,
		percentages, grades, fullscreen, tabSwitch,
		noise, face, payloads, submittedAts,
	)
	return err
}

func (w *ResultWorker) persistSingle(ctx context.Context, r resultRow) error {
	p := r.payload
	cID, err := uuid.Parse(p.ContestID)
	if err != nil {
		w.batch.log.Error().Str("contest_id", p.ContestID).Msg("Dropping result with invalid contest id")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO assessment_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13)
		 ON CONFLICT (contest_id, student_id) DO NOTHING`,
		cID, p.StudentID, p.Reason, p.TotalQuestions, p.CorrectAnswers,
		p.Percentage, p.Grade, p.FullscreenWarning, p.TabSwitchWarning,
		p.NoiseWarning, p.FaceWarning, r.raw, p.SubmittedAt,
	)
	return err
}
