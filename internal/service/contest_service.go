package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Domain Errors
var (
	ErrContestNotFound  = errors.New("contest not found")
	ErrSessionCompleted = errors.New("contest already submitted")
	ErrSessionReplaced  = errors.New("session opened on another connection")
)

const contestCacheTTL = 6 * time.Hour

// ContestService serves papers and test configurations from Redis, falling
// back to PostgreSQL on a miss and re-caching what it read.
type ContestService struct {
	contestRepo *repository.ContestRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewContestService creates a new ContestService.
func NewContestService(contestRepo *repository.ContestRepository, rdb *redis.Client, log zerolog.Logger) *ContestService {
	return &ContestService{
		contestRepo: contestRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "contest_service").Logger(),
	}
}

// Paper returns the full paper, answer key included.
func (s *ContestService) Paper(ctx context.Context, contestID string) (*model.Paper, error) {
	id, err := uuid.Parse(contestID)
	if err != nil {
		return nil, ErrContestNotFound
	}

	key := config.CacheKey.ContestPaperKey(contestID)
	var paper model.Paper
	if s.readCache(ctx, key, &paper) {
		return &paper, nil
	}

	p, err := s.contestRepo.GetPaper(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContestNotFound
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}

	s.writeCache(ctx, key, p)
	return p, nil
}

// Config returns the test configuration. Malformed settings are logged and
// served with every detector disabled.
func (s *ContestService) Config(ctx context.Context, contestID string) (*model.TestConfig, error) {
	id, err := uuid.Parse(contestID)
	if err != nil {
		return nil, ErrContestNotFound
	}

	key := config.CacheKey.ContestConfigKey(contestID)
	var cfg model.TestConfig
	if s.readCache(ctx, key, &cfg) {
		return &cfg, nil
	}

	c, err := s.contestRepo.GetConfig(ctx, id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrContestNotFound
	case errors.Is(err, repository.ErrInvalidSettings):
		s.log.Warn().Err(err).Str("contest_id", contestID).Msg("Contest settings unusable, proctoring disabled")
	case err != nil:
		return nil, fmt.Errorf("get config: %w", err)
	}

	s.writeCache(ctx, key, c)
	return c, nil
}

// Warm caches one contest's paper and configuration in a single pipeline.
func (s *ContestService) Warm(ctx context.Context, id uuid.UUID) error {
	paper, err := s.contestRepo.GetPaper(ctx, id)
	if err != nil {
		return fmt.Errorf("get paper: %w", err)
	}
	cfg, err := s.contestRepo.GetConfig(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrInvalidSettings) {
		return fmt.Errorf("get config: %w", err)
	}

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ContestPaperKey(id.String()), paperJSON, contestCacheTTL)
	pipe.Set(ctx, config.CacheKey.ContestConfigKey(id.String()), cfgJSON, contestCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("contest_id", id.String()).
		Int("questions", paper.TotalQuestions()).
		Msg("Cache warmed")
	return nil
}

// PrewarmAll loads every contest into Redis on application startup.
func (s *ContestService) PrewarmAll(ctx context.Context) error {
	ids, err := s.contestRepo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list contests: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No contests to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if err := s.Warm(ctx, id); err != nil {
			s.log.Warn().
				Err(err).
				Str("contest_id", id.String()).
				Msg("Failed to warm contest, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *ContestService) readCache(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, using database")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cached value corrupt, using database")
		return false
	}
	return true
}

// writeCache self-heals the cache. Failures only cost the next request a
// database round trip.
func (s *ContestService) writeCache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, contestCacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache value")
	}
}
