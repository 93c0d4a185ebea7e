package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/store"
)

const contestID = "7f1c7d7e-3c8a-4c1e-9a51-3d2b1c0f9e11"

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ at time.Time }

func (c *fixedClock) Now() time.Time { return c.at }

type fakeContests struct {
	paper *model.Paper
	cfg   *model.TestConfig
}

func (f fakeContests) Paper(context.Context, string) (*model.Paper, error) {
	if f.paper == nil {
		return nil, ErrContestNotFound
	}
	return f.paper, nil
}

func (f fakeContests) Config(context.Context, string) (*model.TestConfig, error) {
	if f.cfg == nil {
		return nil, ErrContestNotFound
	}
	return f.cfg, nil
}

type fakeCompletion struct {
	done bool
	err  error
}

func (f fakeCompletion) Completed(context.Context, string, int) (bool, error) {
	return f.done, f.err
}

type discardSink struct{}

func (discardSink) Submit(context.Context, *model.SubmissionPayload) error { return nil }

func demoPaper() *model.Paper {
	p := &model.Paper{ContestID: contestID, Title: "Chemistry", Mode: model.ExamModeFlat}
	for range 4 {
		p.Questions = append(p.Questions, model.Question{
			Text:          "q",
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: "a",
		})
	}
	return p
}

func newSessionService(t *testing.T, cfg *model.TestConfig, completion fakeCompletion) (*SessionService, *fixedClock) {
	t.Helper()

	defaults, err := config.LoadProctorDefaults("")
	require.NoError(t, err)

	clock := &fixedClock{at: now}
	svc := NewSessionService(SessionDeps{
		Contests:   fakeContests{paper: demoPaper(), cfg: cfg},
		Completion: completion,
		Store:      store.NewMemory(),
		Sink:       discardSink{},
		Defaults:   defaults,
		Clock:      clock,
		Log:        zerolog.Nop(),
	})
	return svc, clock
}

func desktop() model.ClientInfo {
	return model.ClientInfo{
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) Firefox/140.0",
		ViewportWidth: 1440,
	}
}

func TestSessionServiceLimitsPreferContestSettings(t *testing.T) {
	svc, _ := newSessionService(t, &model.TestConfig{}, fakeCompletion{})

	assert.Equal(t, model.WarningLimits{Fullscreen: 3, TabSwitch: 3, Noise: 3, Face: 3},
		svc.Limits(&model.TestConfig{}))

	custom := &model.TestConfig{Proctoring: model.ProctoringConfig{
		Limits: &model.WarningLimits{Fullscreen: 1, TabSwitch: 2, Noise: 5, Face: 4},
	}}
	assert.Equal(t, *custom.Proctoring.Limits, svc.Limits(custom))
}

func TestSessionServiceTuningFollowsDefaults(t *testing.T) {
	svc, _ := newSessionService(t, &model.TestConfig{}, fakeCompletion{})

	tuning := svc.Tuning()
	assert.Equal(t, time.Second, tuning.FullscreenDebounce)
	assert.Equal(t, 500*time.Millisecond, tuning.FocusDebounce)
	assert.Equal(t, 15*time.Second, tuning.FaceEscalation)
	assert.Equal(t, 8, tuning.Noise.Window)
	assert.InDelta(t, 0.5, tuning.MinimumAnswerRatio, 1e-9)
}

func TestSessionServicePrecheck(t *testing.T) {
	restricted := &model.TestConfig{Proctoring: model.ProctoringConfig{DeviceRestriction: true}}
	svc, _ := newSessionService(t, restricted, fakeCompletion{})
	ctx := context.Background()

	resp, err := svc.Precheck(ctx, contestID, 9, desktop())
	require.NoError(t, err)
	assert.True(t, resp.Allowed)

	phone := model.ClientInfo{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 18_0)", ViewportWidth: 390, TouchPrimary: true}
	resp, err = svc.Precheck(ctx, contestID, 9, phone)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Contains(t, resp.Reason, "mobile")

	// Without the restriction any device passes.
	open, _ := newSessionService(t, &model.TestConfig{}, fakeCompletion{})
	resp, err = open.Precheck(ctx, contestID, 9, phone)
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
}

func TestSessionServiceRejectsCompletedAttempts(t *testing.T) {
	svc, _ := newSessionService(t, &model.TestConfig{DurationMinutes: 30}, fakeCompletion{done: true})
	ctx := context.Background()

	_, err := svc.Open(ctx, contestID, 9, desktop(), nil)
	assert.ErrorIs(t, err, ErrSessionCompleted)

	_, err = svc.Precheck(ctx, contestID, 9, desktop())
	assert.ErrorIs(t, err, ErrSessionCompleted)

	_, err = svc.State(ctx, contestID, 9)
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestSessionServiceCompletionErrorsAreWrapped(t *testing.T) {
	svc, _ := newSessionService(t, &model.TestConfig{}, fakeCompletion{err: errors.New("redis down")})

	_, err := svc.State(context.Background(), contestID, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check completion")
}

func TestSessionServiceOpenEnforcesDeviceRestriction(t *testing.T) {
	restricted := &model.TestConfig{DurationMinutes: 30, Proctoring: model.ProctoringConfig{DeviceRestriction: true}}
	svc, _ := newSessionService(t, restricted, fakeCompletion{})

	narrow := desktop()
	narrow.ViewportWidth = 800
	_, err := svc.Open(context.Background(), contestID, 9, narrow, nil)
	assert.ErrorIs(t, err, proctor.ErrDeviceRestricted)
}

func TestSessionServiceStateReflectsOpenSession(t *testing.T) {
	svc, clock := newSessionService(t, &model.TestConfig{DurationMinutes: 30}, fakeCompletion{})
	ctx := context.Background()

	before, err := svc.State(ctx, contestID, 9)
	require.NoError(t, err)
	assert.False(t, before.Started)
	assert.Equal(t, 1800, before.Remaining)

	ctrl, err := svc.Open(ctx, contestID, 9, desktop(), nil)
	require.NoError(t, err)
	require.Equal(t, proctor.PhaseActive, ctrl.Phase())

	clock.at = now.Add(2 * time.Minute)
	require.NoError(t, ctrl.Dispatch(ctx, proctor.AnswerSelected{Section: 0, Question: 1, Option: "b", At: clock.at}))

	state, err := svc.State(ctx, contestID, 9)
	require.NoError(t, err)
	assert.True(t, state.Started)
	assert.Equal(t, 1680, state.Remaining)
	assert.Equal(t, 1800, state.Duration)
	got, ok := state.Answers.Get(0, 1)
	assert.True(t, ok)
	assert.Equal(t, "b", got)
}

func TestSessionServiceAttachReplacesPreviousConnection(t *testing.T) {
	svc, _ := newSessionService(t, &model.TestConfig{}, fakeCompletion{})

	firstCtx, firstCancel := context.WithCancel(context.Background())
	releaseFirst := svc.Attach(contestID, 9, firstCancel)
	assert.Equal(t, 1, svc.LiveCount())

	_, secondCancel := context.WithCancel(context.Background())
	defer secondCancel()
	releaseSecond := svc.Attach(contestID, 9, secondCancel)

	assert.ErrorIs(t, firstCtx.Err(), context.Canceled)
	assert.Equal(t, 1, svc.LiveCount())

	// The replaced connection's release must not evict the new one.
	releaseFirst()
	assert.Equal(t, 1, svc.LiveCount())

	releaseSecond()
	assert.Equal(t, 0, svc.LiveCount())
}
