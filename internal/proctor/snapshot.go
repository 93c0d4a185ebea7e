package proctor

import (
	"context"
	"strconv"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SessionDuration is the total time budget in seconds. Sectioned papers use
// the sum of their section durations when that sum is positive.
func SessionDuration(p *model.Paper, cfg model.TestConfig) int {
	duration := cfg.DurationMinutes * 60
	if p.Mode != model.ExamModeSectioned {
		return duration
	}
	sum := 0
	for _, s := range p.Sections {
		sum += s.Duration.Seconds()
	}
	if sum > 0 {
		return sum
	}
	return duration
}

// Snapshot is what a persisted session looks like from outside, without a
// live controller.
type Snapshot struct {
	Started      bool        `json:"started"`
	Remaining    int         `json:"remaining"`
	SectionIndex int         `json:"section_index"`
	Answers      AnswerSet   `json:"answers"`
	Review       ReviewMarks `json:"review"`
	Warnings     Counts      `json:"warnings"`
}

// ReadSnapshot reads a session namespace without writing to it. A session
// that never started reports its full budget.
func ReadSnapshot(ctx context.Context, store SessionStore, namespace string, durationSeconds int, now time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		Remaining: durationSeconds,
		Answers:   make(AnswerSet),
		Review:    make(ReviewMarks),
	}

	start, ok, err := loadEpoch(ctx, store, namespace, config.KeyStartEpoch)
	if err != nil {
		return nil, err
	}
	if ok {
		snap.Started = true
		snap.Remaining = remainingSeconds(start, durationSeconds, now)
	}

	if raw, ok, err := store.Get(ctx, namespace, config.KeySectionIndex); err != nil {
		return nil, err
	} else if ok {
		if i, err := strconv.Atoi(raw); err == nil && i >= 0 {
			snap.SectionIndex = i
		}
	}

	if _, err := loadJSON(ctx, store, namespace, config.KeyAnswers, &snap.Answers); err != nil {
		return nil, err
	}
	if _, err := loadJSON(ctx, store, namespace, config.KeyReviewMarks, &snap.Review); err != nil {
		return nil, err
	}
	if snap.Answers == nil {
		snap.Answers = make(AnswerSet)
	}
	if snap.Review == nil {
		snap.Review = make(ReviewMarks)
	}

	ledger := NewLedger(store, namespace)
	if err := ledger.Load(ctx); err != nil {
		return nil, err
	}
	snap.Warnings = ledger.Counts()

	return snap, nil
}
