package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrInvalidSettings is returned alongside a usable, proctoring-disabled
// config when a contest's settings column cannot be decoded.
var ErrInvalidSettings = errors.New("contest settings are malformed")

// ContestRepository handles contest, section and question data access.
type ContestRepository struct {
	pool *pgxpool.Pool
}

// NewContestRepository creates a new ContestRepository.
func NewContestRepository(pool *pgxpool.Pool) *ContestRepository {
	return &ContestRepository{pool: pool}
}

// GetByID retrieves a contest row without its questions.
func (r *ContestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Contest, error) {
	var (
		c        = model.Contest{ID: id.String()}
		duration int
		settings []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT title, mode, duration_minutes, settings, created_at
		 FROM contests WHERE id = $1`, id,
	).Scan(&c.Title, &c.Mode, &duration, &settings, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Config, err = decodeConfig(c.ID, duration, settings)
	return &c, err
}

// GetConfig returns the test configuration of a contest. Missing settings
// yield a config with every detector disabled.
func (r *ContestRepository) GetConfig(ctx context.Context, id uuid.UUID) (*model.TestConfig, error) {
	var (
		duration int
		settings []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT duration_minutes, settings FROM contests WHERE id = $1`, id,
	).Scan(&duration, &settings)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeConfig(id.String(), duration, settings)
	return &cfg, err
}

func decodeConfig(contestID string, duration int, settings []byte) (model.TestConfig, error) {
	cfg := model.TestConfig{
		ContestID:       contestID,
		DurationMinutes: duration,
	}
	if len(settings) == 0 {
		cfg.Proctoring = cfg.Proctoring.Disabled()
		return cfg, nil
	}
	if err := json.Unmarshal(settings, &cfg); err != nil {
		cfg = model.TestConfig{ContestID: contestID, DurationMinutes: duration}
		return cfg, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	// The row owns identity and duration; the blob cannot override them.
	cfg.ContestID = contestID
	cfg.DurationMinutes = duration
	return cfg, nil
}

// GetPaper loads the full paper of a contest, answer key included.
func (r *ContestRepository) GetPaper(ctx context.Context, id uuid.UUID) (*model.Paper, error) {
	p := &model.Paper{ContestID: id.String()}
	err := r.pool.QueryRow(ctx,
		`SELECT title, mode FROM contests WHERE id = $1`, id,
	).Scan(&p.Title, &p.Mode)
	if err != nil {
		return nil, err
	}

	if p.Mode == model.ExamModeSectioned {
		sections, err := r.listSections(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list sections: %w", err)
		}
		p.Sections = sections
	}

	rows, err := r.pool.Query(ctx,
		`SELECT section_position, question_text, options, correct_answer
		 FROM contest_questions
		 WHERE contest_id = $1
		 ORDER BY section_position ASC, position ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			section int
			q       model.Question
			options []byte
		)
		if err := rows.Scan(&section, &q.Text, &options, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}

		if p.Mode != model.ExamModeSectioned {
			p.Questions = append(p.Questions, q)
			continue
		}
		if section < 0 || section >= len(p.Sections) {
			return nil, fmt.Errorf("question references unknown section %d", section)
		}
		p.Sections[section].Questions = append(p.Sections[section].Questions, q)
	}

	return p, rows.Err()
}

func (r *ContestRepository) listSections(ctx context.Context, id uuid.UUID) ([]model.Section, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, duration_hours, duration_minutes
		 FROM contest_sections
		 WHERE contest_id = $1
		 ORDER BY position ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.Name, &s.Duration.Hours, &s.Duration.Minutes); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// ListIDs returns every contest ID, newest first.
func (r *ContestRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, _ := r.pool.Query(ctx, `SELECT id FROM contests ORDER BY created_at DESC`)
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
