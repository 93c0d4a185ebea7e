package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

type seedSection struct {
	name      string
	minutes   int
	questions []model.Question
}

func main() {
	var (
		sectioned bool
		students  int
		tokenTTL  time.Duration
	)
	flag.BoolVar(&sectioned, "sectioned", false, "Seed a two-section paper instead of a flat one")
	flag.IntVar(&students, "students", 5, "Number of student tokens to print")
	flag.DurationVar(&tokenTTL, "ttl", 6*time.Hour, "Lifetime of the printed tokens")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, logger.FileOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	mode := model.ExamModeFlat
	sections := []seedSection{{name: "Umum", minutes: 30, questions: demoQuestions("Umum", 10)}}
	if sectioned {
		mode = model.ExamModeSectioned
		sections = []seedSection{
			{name: "Matematika", minutes: 20, questions: demoQuestions("Matematika", 8)},
			{name: "Fisika", minutes: 15, questions: demoQuestions("Fisika", 6)},
		}
	}

	settings, _ := json.Marshal(model.TestConfig{
		PassPercentage: 60,
		Proctoring: model.ProctoringConfig{
			Fullscreen:        true,
			Face:              true,
			Noise:             true,
			DeviceRestriction: true,
			Limits:            &model.WarningLimits{Fullscreen: 3, TabSwitch: 3, Noise: 3, Face: 3},
		},
	})

	fmt.Println("=== Seeding Contest ===")

	var contestID uuid.UUID
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO contests (title, mode, duration_minutes, settings)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			"Try Out "+time.Now().Format("2006-01-02"), mode, 30, settings,
		).Scan(&contestID); err != nil {
			return fmt.Errorf("insert contest: %w", err)
		}

		for si, s := range sections {
			if mode == model.ExamModeSectioned {
				if _, err := tx.Exec(ctx,
					`INSERT INTO contest_sections (contest_id, position, name, duration_hours, duration_minutes)
					 VALUES ($1, $2, $3, 0, $4)`,
					contestID, si, s.name, s.minutes,
				); err != nil {
					return fmt.Errorf("insert section %d: %w", si, err)
				}
			}
			for qi, q := range s.questions {
				options, _ := json.Marshal(q.Options)
				if _, err := tx.Exec(ctx,
					`INSERT INTO contest_questions (contest_id, section_position, position, question_text, options, correct_answer)
					 VALUES ($1, $2, $3, $4, $5, $6)`,
					contestID, si, qi, q.Text, options, q.CorrectAnswer,
				); err != nil {
					return fmt.Errorf("insert question %d.%d: %w", si, qi, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed contest")
	}

	contest, err := repository.NewContestRepository(pool).GetByID(ctx, contestID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read back contest")
	}
	fmt.Printf("Created contest %q (%s, mode=%s)\n", contest.Title, contest.ID, contest.Mode)

	authService := service.NewAuthService(cfg)
	fmt.Printf("\n=== Student Tokens (valid %s) ===\n", tokenTTL)
	for i := 1; i <= students; i++ {
		token, err := authService.IssueToken(service.TokenTypeStudent, i, tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Printf("student %d: %s\n", i, token)
	}

	admin, err := authService.IssueToken(service.TokenTypeAdmin, 1, tokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Printf("\nadmin: %s\n", admin)
}

func demoQuestions(topic string, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			Text:          fmt.Sprintf("%s soal nomor %d", topic, i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: []string{"A", "B", "C", "D"}[i%4],
		}
	}
	return qs
}
