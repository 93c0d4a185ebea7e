package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository reads the per-contest aggregates shown on the admin board.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

type studentCount struct {
	StudentID int
	Count     int64
}

type categoryCount struct {
	StudentID int
	Category  string
	Count     int64
}

// GetAnsweredCounts returns how many questions each student has answered.
// Students without answers are absent.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, contestID uuid.UUID) (map[int]int64, error) {
	rows, _ := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM student_answers
		 WHERE contest_id = $1 AND answer <> ''
		 GROUP BY student_id`,
		contestID,
	)
	counts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[studentCount])
	if err != nil {
		return nil, err
	}

	result := make(map[int]int64, len(counts))
	for _, c := range counts {
		result[c.StudentID] = c.Count
	}
	return result, nil
}

// GetViolationCounts returns recorded violations per student and category.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, contestID uuid.UUID) (map[int]map[string]int64, error) {
	rows, _ := r.pool.Query(ctx,
		`SELECT student_id, category, COUNT(*)
		 FROM proctor_violations
		 WHERE contest_id = $1
		 GROUP BY student_id, category`,
		contestID,
	)
	counts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[categoryCount])
	if err != nil {
		return nil, err
	}

	result := make(map[int]map[string]int64)
	for _, c := range counts {
		if result[c.StudentID] == nil {
			result[c.StudentID] = make(map[string]int64)
		}
		result[c.StudentID][c.Category] = c.Count
	}
	return result, nil
}

// GetSubmittedStudentIDs returns the students with a persisted result.
func (r *MonitorRepository) GetSubmittedStudentIDs(ctx context.Context, contestID uuid.UUID) ([]int, error) {
	rows, _ := r.pool.Query(ctx,
		`SELECT student_id FROM assessment_results WHERE contest_id = $1`,
		contestID,
	)
	return pgx.CollectRows(rows, pgx.RowTo[int])
}
