package proctor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/store"
)

func TestSessionDuration(t *testing.T) {
	cfg := model.TestConfig{DurationMinutes: 30}

	assert.Equal(t, 1800, SessionDuration(flatPaper(3), cfg))
	assert.Equal(t, 120, SessionDuration(sectionedPaper(), cfg))

	untimed := sectionedPaper()
	for i := range untimed.Sections {
		untimed.Sections[i].Duration = model.SectionDuration{}
	}
	assert.Equal(t, 1800, SessionDuration(untimed, cfg))
}

func TestReadSnapshotOfUnstartedSession(t *testing.T) {
	s := store.NewMemory()

	snap, err := ReadSnapshot(context.Background(), s, ns, 600, t0)
	require.NoError(t, err)

	assert.False(t, snap.Started)
	assert.Equal(t, 600, snap.Remaining)
	assert.Empty(t, snap.Answers)
	assert.Equal(t, Counts{}, snap.Warnings)

	// Reading must not start the clock.
	_, ok, _ := s.Get(context.Background(), ns, config.KeyStartEpoch)
	assert.False(t, ok)
}

func TestReadSnapshotOfRunningSession(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	tm := NewTimer(s, ns, 600)
	require.NoError(t, tm.Start(ctx, t0))

	ledger := NewLedger(s, ns)
	_, err := ledger.Record(ctx, CategoryNoise)
	require.NoError(t, err)

	answers := AnswerSet{}
	answers.Set(0, 2, "c")
	require.NoError(t, saveJSON(ctx, s, ns, config.KeyAnswers, answers))
	require.NoError(t, s.Set(ctx, ns, config.KeySectionIndex, "1"))

	snap, err := ReadSnapshot(ctx, s, ns, 600, t0.Add(100*time.Second))
	require.NoError(t, err)

	assert.True(t, snap.Started)
	assert.Equal(t, 500, snap.Remaining)
	assert.Equal(t, 1, snap.SectionIndex)
	assert.Equal(t, 1, snap.Warnings.Noise)
	got, ok := snap.Answers.Get(0, 2)
	assert.True(t, ok)
	assert.Equal(t, "c", got)
}
