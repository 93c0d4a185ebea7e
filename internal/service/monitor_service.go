package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// MonitorService orchestrates live contest monitoring.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// StudentProgress is one student's row on the monitor board.
type StudentProgress struct {
	StudentID  int              `json:"student_id"`
	Answered   int64            `json:"answered"`
	Violations map[string]int64 `json:"violations"`
	Total      int64            `json:"total_violations"`
	Submitted  bool             `json:"submitted"`
}

// ContestProgress is the monitor board for one contest.
type ContestProgress struct {
	ContestID       uuid.UUID         `json:"contest_id"`
	Students        []StudentProgress `json:"students"`
	TotalViolations int64             `json:"total_violations"`
}

// GetContestProgress fetches answered counts, violation counts and submitted
// students concurrently and merges them per student.
func (s *MonitorService) GetContestProgress(ctx context.Context, contestID uuid.UUID) (*ContestProgress, error) {
	var (
		answered     map[int]int64
		violations   map[int]map[string]int64
		submitted    []int
		answeredErr  error
		violationErr error
		submitErr    error
		wg           sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		answered, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, contestID)
	}()
	go func() {
		defer wg.Done()
		violations, violationErr = s.monitorRepo.GetViolationCounts(ctx, contestID)
	}()
	go func() {
		defer wg.Done()
		submitted, submitErr = s.monitorRepo.GetSubmittedStudentIDs(ctx, contestID)
	}()
	wg.Wait()

	// Violation counts are the point of the board; the rest is best-effort.
	if violationErr != nil {
		return nil, violationErr
	}
	if answeredErr != nil {
		answered = nil
	}
	if submitErr != nil {
		submitted = nil
	}

	rows := make(map[int]*StudentProgress)
	row := func(id int) *StudentProgress {
		if r, ok := rows[id]; ok {
			return r
		}
		r := &StudentProgress{StudentID: id, Violations: make(map[string]int64)}
		rows[id] = r
		return r
	}

	progress := &ContestProgress{ContestID: contestID, Students: []StudentProgress{}}
	for id, n := range answered {
		row(id).Answered = n
	}
	for id, byCategory := range violations {
		r := row(id)
		for cat, n := range byCategory {
			r.Violations[cat] = n
			r.Total += n
			progress.TotalViolations += n
		}
	}
	for _, id := range submitted {
		row(id).Submitted = true
	}

	for _, r := range rows {
		progress.Students = append(progress.Students, *r)
	}
	sort.Slice(progress.Students, func(i, j int) bool {
		return progress.Students[i].StudentID < progress.Students[j].StudentID
	})

	return progress, nil
}
