package proctor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
)

// SectionClock runs the sections of a sectioned paper one after another. Each
// section's start epoch is persisted when it opens; a section whose time runs
// out hands over to the next at the moment it expired.
type SectionClock struct {
	store     SessionStore
	namespace string
	durations []int
	starts    []time.Time
	index     int
	finished  bool
}

func NewSectionClock(store SessionStore, namespace string, durations []int) *SectionClock {
	return &SectionClock{
		store:     store,
		namespace: namespace,
		durations: durations,
		starts:    make([]time.Time, len(durations)),
	}
}

// Start restores the current section and its start epochs, opening section 0
// on a fresh session.
func (s *SectionClock) Start(ctx context.Context, now time.Time) error {
	raw, ok, err := s.store.Get(ctx, s.namespace, config.KeySectionIndex)
	if err != nil {
		return fmt.Errorf("load section index: %w", err)
	}
	if ok {
		if i, err := strconv.Atoi(raw); err == nil && i >= 0 && i < len(s.durations) {
			s.index = i
		}
	}

	for i := 0; i <= s.index; i++ {
		at, ok, err := loadEpoch(ctx, s.store, s.namespace, config.SectionStartKey(i))
		if err != nil {
			return err
		}
		if ok {
			s.starts[i] = at
		}
	}

	if s.starts[s.index].IsZero() {
		return s.open(ctx, s.index, now)
	}
	return nil
}

// Current is the index of the section being answered.
func (s *SectionClock) Current() int { return s.index }

// Count is the number of sections.
func (s *SectionClock) Count() int { return len(s.durations) }

// Locked reports whether section i can no longer be answered.
func (s *SectionClock) Locked(i int) bool { return i != s.index }

// Remaining returns the seconds left per section. Passed sections read zero,
// upcoming ones their full duration.
func (s *SectionClock) Remaining(now time.Time) []int {
	out := make([]int, len(s.durations))
	for i, d := range s.durations {
		switch {
		case i < s.index:
			out[i] = 0
		case i > s.index:
			out[i] = d
		default:
			out[i] = remainingSeconds(s.starts[i], d, now)
		}
	}
	return out
}

// Tick advances past every section that has run out and persists the
// remaining snapshot. finished is true once, when the last section expires.
func (s *SectionClock) Tick(ctx context.Context, now time.Time) (advanced, finished bool, err error) {
	for !s.finished && remainingSeconds(s.starts[s.index], s.durations[s.index], now) == 0 {
		if s.index == len(s.durations)-1 {
			s.finished = true
			finished = true
			break
		}
		expiredAt := s.starts[s.index].Add(time.Duration(s.durations[s.index]) * time.Second)
		if err := s.open(ctx, s.index+1, expiredAt); err != nil {
			return advanced, false, err
		}
		advanced = true
	}

	return advanced, finished, s.snapshot(ctx, now)
}

// Advance locks the current section and opens the next one now.
func (s *SectionClock) Advance(ctx context.Context, now time.Time) error {
	if s.index >= len(s.durations)-1 {
		return ErrLastSection
	}
	return s.open(ctx, s.index+1, now)
}

func (s *SectionClock) open(ctx context.Context, i int, at time.Time) error {
	s.index = i
	s.starts[i] = at
	if err := saveEpoch(ctx, s.store, s.namespace, config.SectionStartKey(i), at); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.namespace, config.KeySectionIndex, strconv.Itoa(i)); err != nil {
		return fmt.Errorf("persist section index: %w", err)
	}
	return nil
}

func (s *SectionClock) snapshot(ctx context.Context, now time.Time) error {
	b, err := json.Marshal(s.Remaining(now))
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.namespace, config.KeyRemainingSnapshot, string(b)); err != nil {
		return fmt.Errorf("persist remaining snapshot: %w", err)
	}
	return nil
}
