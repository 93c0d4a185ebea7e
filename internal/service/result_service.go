package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// ResultService answers whether a student already submitted a contest.
type ResultService struct {
	resultRepo *repository.ResultRepository
	rdb        *redis.Client
}

// NewResultService creates a new ResultService.
func NewResultService(resultRepo *repository.ResultRepository, rdb *redis.Client) *ResultService {
	return &ResultService{resultRepo: resultRepo, rdb: rdb}
}

// Completed checks the completion marker written at submit time, then the
// persisted results for submissions older than the marker's TTL.
func (s *ResultService) Completed(ctx context.Context, contestID string, studentID int) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.StudentContestCompletedKey(contestID, studentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check completion marker: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	id, err := uuid.Parse(contestID)
	if err != nil {
		return false, ErrContestNotFound
	}
	done, err := s.resultRepo.Exists(ctx, id, studentID)
	if err != nil {
		return false, fmt.Errorf("check results: %w", err)
	}
	return done, nil
}
