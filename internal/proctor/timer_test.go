package proctor

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/store"
)

const ns = "student:7:contest:c1"

func TestTimerResumesFromPersistedEpoch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	first := NewTimer(s, ns, 600)
	require.NoError(t, first.Start(ctx, t0))

	raw, ok, err := s.Get(ctx, ns, config.KeyStartEpoch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(t0.UnixMilli(), 10), raw)

	// A reload 90 seconds later must not restart the clock.
	reloaded := NewTimer(s, ns, 600)
	require.NoError(t, reloaded.Start(ctx, t0.Add(90*time.Second)))
	assert.Equal(t, 510, reloaded.Remaining(t0.Add(90*time.Second)))
}

func TestTimerRemainingIsMonotonicAndClamped(t *testing.T) {
	ctx := context.Background()
	tm := NewTimer(store.NewMemory(), ns, 5)
	require.NoError(t, tm.Start(ctx, t0))

	assert.Equal(t, 5, tm.Remaining(t0.Add(-time.Minute)))

	prev := tm.Remaining(t0)
	for ms := 0; ms <= 8000; ms += 250 {
		r := tm.Remaining(t0.Add(time.Duration(ms) * time.Millisecond))
		assert.LessOrEqual(t, r, prev)
		assert.GreaterOrEqual(t, r, 0)
		prev = r
	}
	assert.Equal(t, 0, prev)
}

func TestTimerExpiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	tm := NewTimer(store.NewMemory(), ns, 2)
	require.NoError(t, tm.Start(ctx, t0))

	_, expired := tm.Tick(t0.Add(time.Second))
	assert.False(t, expired)

	fired := 0
	for i := 2; i < 6; i++ {
		if _, expired := tm.Tick(t0.Add(time.Duration(i) * time.Second)); expired {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
}

func TestTimerIgnoresCorruptEpoch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Set(ctx, ns, config.KeyStartEpoch, "yesterday"))

	tm := NewTimer(s, ns, 60)
	require.NoError(t, tm.Start(ctx, t0))
	assert.Equal(t, t0.UnixMilli(), tm.StartedAt().UnixMilli())
}

func TestSectionClockAutoAdvances(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	sc := NewSectionClock(s, ns, []int{60, 60, 30})
	require.NoError(t, sc.Start(ctx, t0))

	assert.Equal(t, 0, sc.Current())
	assert.True(t, sc.Locked(1))

	// Offline long enough to miss the whole second section.
	advanced, finished, err := sc.Tick(ctx, t0.Add(125*time.Second))
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.False(t, finished)
	assert.Equal(t, 2, sc.Current())
	assert.True(t, sc.Locked(0))

	if diff := cmp.Diff([]int{0, 0, 25}, sc.Remaining(t0.Add(125*time.Second))); diff != "" {
		t.Errorf("remaining mismatch (-want +got):\n%s", diff)
	}

	snap, ok, _ := s.Get(ctx, ns, config.KeyRemainingSnapshot)
	require.True(t, ok)
	assert.JSONEq(t, `[0,0,25]`, snap)

	_, finished, err = sc.Tick(ctx, t0.Add(150*time.Second))
	require.NoError(t, err)
	assert.True(t, finished)

	_, finished, _ = sc.Tick(ctx, t0.Add(151*time.Second))
	assert.False(t, finished)
}

func TestSectionClockManualAdvanceAndReload(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	sc := NewSectionClock(s, ns, []int{60, 60})
	require.NoError(t, sc.Start(ctx, t0))

	require.NoError(t, sc.Advance(ctx, t0.Add(20*time.Second)))
	assert.ErrorIs(t, sc.Advance(ctx, t0.Add(21*time.Second)), ErrLastSection)

	reloaded := NewSectionClock(s, ns, []int{60, 60})
	require.NoError(t, reloaded.Start(ctx, t0.Add(50*time.Second)))
	assert.Equal(t, 1, reloaded.Current())
	assert.Equal(t, []int{0, 30}, reloaded.Remaining(t0.Add(50*time.Second)))
}

func TestLedgerPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	l := NewLedger(s, ns)
	require.NoError(t, l.Load(ctx))
	for range 2 {
		_, err := l.Record(ctx, CategoryNoise)
		require.NoError(t, err)
	}
	n, err := l.Record(ctx, CategoryFace)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, _, _ := s.Get(ctx, ns, config.WarningCountKey("noise"))
	assert.Equal(t, "2", raw)

	restored := NewLedger(s, ns)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, Counts{Noise: 2, Face: 1}, restored.Counts())
}

func TestLedgerBreachRequiresEveryCategory(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewMemory(), ns)
	limits := modelLimits(1, 1, 1, 1)

	for _, cat := range []Category{CategoryFullscreen, CategoryTabSwitch, CategoryNoise} {
		_, _ = l.Record(ctx, cat)
		_, _ = l.Record(ctx, cat)
		_, _ = l.Record(ctx, cat)
	}
	assert.False(t, l.BreachesAll(limits))

	_, _ = l.Record(ctx, CategoryFace)
	assert.True(t, l.BreachesAll(limits))
}
