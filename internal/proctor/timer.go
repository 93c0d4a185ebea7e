package proctor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
)

// Timer derives remaining time from a persisted start epoch, so a reload
// resumes the countdown instead of restarting it.
type Timer struct {
	store     SessionStore
	namespace string
	duration  int
	start     time.Time
	expired   bool
}

func NewTimer(store SessionStore, namespace string, durationSeconds int) *Timer {
	return &Timer{store: store, namespace: namespace, duration: durationSeconds}
}

// Start reuses a persisted epoch or persists now as the new one.
func (t *Timer) Start(ctx context.Context, now time.Time) error {
	start, ok, err := loadEpoch(ctx, t.store, t.namespace, config.KeyStartEpoch)
	if err != nil {
		return err
	}
	if ok {
		t.start = start
		return nil
	}

	t.start = now
	return saveEpoch(ctx, t.store, t.namespace, config.KeyStartEpoch, now)
}

func (t *Timer) StartedAt() time.Time { return t.start }
func (t *Timer) Duration() int { return t.duration }

// Remaining is the whole seconds left, clamped to [0, duration].
func (t *Timer) Remaining(now time.Time) int {
	return remainingSeconds(t.start, t.duration, now)
}

// Tick reports the remaining time and whether the budget ran out. The expired
// flag is true on exactly one call.
func (t *Timer) Tick(now time.Time) (int, bool) {
	r := t.Remaining(now)
	if r > 0 || t.expired {
		return r, false
	}
	t.expired = true
	return 0, true
}

func remainingSeconds(start time.Time, duration int, now time.Time) int {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	r := duration - int(elapsed/time.Second)
	if r < 0 {
		return 0
	}
	return r
}

func loadEpoch(ctx context.Context, store SessionStore, ns, key string) (time.Time, bool, error) {
	raw, ok, err := store.Get(ctx, ns, key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Corrupt epoch: treat as absent and start over.
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func saveEpoch(ctx context.Context, store SessionStore, ns, key string, at time.Time) error {
	if err := store.Set(ctx, ns, key, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
