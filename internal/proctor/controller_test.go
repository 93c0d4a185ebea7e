package proctor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/store"
)

type harness struct {
	t       *testing.T
	ctx     context.Context
	c       *Controller
	store   *store.Memory
	sink    *countingSink
	clock   *fakeClock
	notices []Notice
}

type harnessOption func(*Session, *Deps)

func withLimits(l model.WarningLimits) harnessOption {
	return func(s *Session, _ *Deps) { s.Limits = l }
}

func withProctoring(p model.ProctoringConfig) harnessOption {
	return func(s *Session, _ *Deps) { s.Config.Proctoring = p }
}

func withPaper(p *model.Paper) harnessOption {
	return func(s *Session, d *Deps) {
		s.ContestID = p.ContestID
		d.Papers = staticPapers{paper: p}
	}
}

func withShuffle() harnessOption {
	return func(s *Session, _ *Deps) { s.Config.ShuffleQuestions = true }
}

func newHarness(t *testing.T, mem *store.Memory, sink *countingSink, clock *fakeClock, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{t: t, ctx: context.Background(), store: mem, sink: sink, clock: clock}

	sess := Session{
		ContestID: "c1",
		StudentID: 7,
		Config: model.TestConfig{
			ContestID:       "c1",
			DurationMinutes: 60,
			PassPercentage:  50,
			Proctoring:      fullProctoring(),
		},
		Limits: modelLimits(3, 3, 3, 3),
	}
	deps := Deps{
		Store:    mem,
		Papers:   staticPapers{paper: flatPaper(10)},
		Sink:     sink,
		Clock:    clock,
		Log:      zerolog.Nop(),
		Notifier: NotifierFunc(func(n Notice) { h.notices = append(h.notices, n) }),
	}
	for _, opt := range opts {
		opt(&sess, &deps)
	}

	h.c = NewController(sess, DefaultTuning(), deps)
	require.NoError(t, h.c.Init(h.ctx))
	return h
}

func startHarness(t *testing.T, opts ...harnessOption) *harness {
	return newHarness(t, store.NewMemory(), &countingSink{}, &fakeClock{now: t0}, opts...)
}

// after advances the fake clock by d and returns the new time.
func (h *harness) after(d time.Duration) time.Time {
	return h.clock.Advance(d)
}

func (h *harness) dispatch(ev Event) error {
	return h.c.Dispatch(h.ctx, ev)
}

func (h *harness) noticesOf(kind NoticeKind) []Notice {
	var out []Notice
	for _, n := range h.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// breach drives exactly one counted violation of cat.
func (h *harness) breach(cat Category) {
	h.t.Helper()
	switch cat {
	case CategoryFullscreen:
		_ = h.dispatch(FullscreenChanged{Active: true, At: h.after(2 * time.Second)})
		_ = h.dispatch(FullscreenChanged{Active: false, At: h.after(10 * time.Millisecond)})
	case CategoryTabSwitch:
		_ = h.dispatch(WindowBlurred{At: h.after(2 * time.Second)})
	case CategoryNoise:
		_ = h.dispatch(NoiseSampled{Samples: []uint8{5}, At: h.after(2 * time.Second)})
		for range 8 {
			_ = h.dispatch(NoiseSampled{Samples: []uint8{250}, At: h.after(10 * time.Millisecond)})
		}
	case CategoryFace:
		_ = h.dispatch(FaceObserved{Faces: 0, At: h.after(2 * time.Second)})
		_ = h.dispatch(FaceObserved{Faces: 0, At: h.after(time.Second)})
		_ = h.dispatch(FaceObserved{Faces: 1, EyesOpen: true, Oriented: true, At: h.after(10 * time.Millisecond)})
	}
}

func TestControllerInitActivatesAndRequestsFullscreen(t *testing.T) {
	h := startHarness(t)

	assert.Equal(t, PhaseActive, h.c.Phase())
	require.Len(t, h.noticesOf(NoticePaper), 1)
	assert.Len(t, h.noticesOf(NoticeRequestFullscreen), 1)

	paper := h.noticesOf(NoticePaper)[0].Paper
	require.Len(t, paper.Sections, 1)
	assert.Len(t, paper.Sections[0].Questions, 10)

	state := h.c.State()
	assert.Equal(t, 3600, state.Timer.Remaining)
	assert.True(t, state.Guards[CategoryFullscreen])
	assert.True(t, state.Guards[CategoryTabSwitch])
}

func TestControllerInitFailsWithoutPaper(t *testing.T) {
	c := NewController(Session{ContestID: "c1", StudentID: 7}, DefaultTuning(), Deps{
		Store:  store.NewMemory(),
		Papers: staticPapers{paper: &model.Paper{Mode: model.ExamModeFlat}},
		Sink:   &countingSink{},
		Log:    zerolog.Nop(),
	})

	assert.ErrorIs(t, c.Init(context.Background()), ErrEmptyPaper)
	assert.Equal(t, PhaseLoading, c.Phase())
	assert.ErrorIs(t, c.Dispatch(context.Background(), Tick{At: t0}), ErrNotActive)
}

func TestControllerWarningCountersOnlyGrow(t *testing.T) {
	h := startHarness(t, withLimits(modelLimits(10, 10, 10, 10)))

	prev := h.c.Counts()
	for _, cat := range []Category{CategoryFullscreen, CategoryTabSwitch, CategoryNoise, CategoryFace, CategoryTabSwitch} {
		h.breach(cat)
		_ = h.dispatch(ModalDismissed{At: h.after(time.Millisecond)})

		cur := h.c.Counts()
		for _, c := range Categories {
			assert.GreaterOrEqual(t, cur.Get(c), prev.Get(c))
		}
		prev = cur
	}

	assert.Equal(t, Counts{Fullscreen: 1, TabSwitch: 2, Noise: 1, Face: 1}, prev)

	raw, _, err := h.store.Get(h.ctx, h.c.Namespace(), config.WarningCountKey("tab_switch"))
	require.NoError(t, err)
	assert.Equal(t, "2", raw)
}

func TestControllerFinishesOnlyWhenEveryLimitIsReached(t *testing.T) {
	h := startHarness(t, withLimits(modelLimits(1, 1, 1, 1)))

	h.breach(CategoryFullscreen)
	h.breach(CategoryTabSwitch)
	h.breach(CategoryNoise)
	h.breach(CategoryTabSwitch)
	assert.Equal(t, PhaseActive, h.c.Phase())
	assert.Zero(t, h.sink.calls)

	h.breach(CategoryFace)
	assert.Equal(t, PhaseFinished, h.c.Phase())
	assert.Equal(t, 1, h.sink.calls)

	p := h.sink.payloads[0]
	assert.Equal(t, string(ReasonViolations), p.Reason)
	assert.Equal(t, 1, p.FullscreenWarning)
	assert.Equal(t, 2, p.TabSwitchWarning)
	assert.Equal(t, 1, p.FaceWarning)

	// Later signals are ignored.
	assert.ErrorIs(t, h.dispatch(WindowBlurred{At: h.after(5 * time.Second)}), ErrNotActive)
	assert.Equal(t, 1, h.sink.calls)

	// Finished sessions leave nothing behind.
	all, err := h.store.All(h.ctx, h.c.Namespace())
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Len(t, h.noticesOf(NoticeStopMedia), 1)
	require.Len(t, h.noticesOf(NoticeFinished), 1)
	assert.Equal(t, ReasonViolations, h.noticesOf(NoticeFinished)[0].Finished.Reason)
	for _, g := range h.c.guards {
		assert.False(t, g.Active())
	}
}

func TestControllerSubmitsOnceWhenExpiryAndBreachCoincide(t *testing.T) {
	h := startHarness(t, withLimits(modelLimits(1, 0, 0, 0)))

	_ = h.dispatch(FullscreenChanged{Active: true, At: h.after(time.Second)})

	// The exit lands after the budget ran out but before the next tick.
	at := h.after(time.Hour)
	require.NoError(t, h.dispatch(FullscreenChanged{Active: false, At: at}))
	assert.ErrorIs(t, h.dispatch(Tick{At: at}), ErrNotActive)

	assert.Equal(t, PhaseFinished, h.c.Phase())
	assert.Equal(t, 1, h.sink.calls)
}

func TestControllerTimeExpiry(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.dispatch(Tick{At: h.after(59 * time.Minute)}))
	assert.Equal(t, PhaseActive, h.c.Phase())

	timers := h.noticesOf(NoticeTimer)
	assert.Equal(t, 60, timers[len(timers)-1].Timer.Remaining)

	require.NoError(t, h.dispatch(Tick{At: h.after(time.Minute)}))
	assert.Equal(t, PhaseFinished, h.c.Phase())
	require.Len(t, h.sink.payloads, 1)
	assert.Equal(t, string(ReasonTimeExpired), h.sink.payloads[0].Reason)
	assert.Equal(t, model.NotAttended, h.sink.payloads[0].Answers[0].Selected)
}

func TestControllerFailedSubmissionStaysActiveUntilRetried(t *testing.T) {
	h := newHarness(t, store.NewMemory(), &countingSink{failures: 1}, &fakeClock{now: t0})

	err := h.dispatch(Tick{At: h.after(time.Hour)})
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.Equal(t, PhaseActive, h.c.Phase())
	assert.Equal(t, 1, h.sink.calls)

	// No automatic retry on the next tick.
	require.NoError(t, h.dispatch(Tick{At: h.after(time.Second)}))
	assert.Equal(t, 1, h.sink.calls)

	// Retrying from the finish dialog bypasses the answer minimum.
	require.NoError(t, h.dispatch(FinishRequested{At: h.after(time.Second)}))
	require.NoError(t, h.dispatch(FinishConfirmed{At: h.after(time.Second)}))
	assert.Equal(t, PhaseFinished, h.c.Phase())
	assert.Equal(t, 2, h.sink.calls)
	assert.Equal(t, string(ReasonTimeExpired), h.sink.payloads[0].Reason)
}

func TestControllerAnswersFreezeWhenTimeIsUp(t *testing.T) {
	h := newHarness(t, store.NewMemory(), &countingSink{failures: 1}, &fakeClock{now: t0})

	require.ErrorIs(t, h.dispatch(Tick{At: h.after(time.Hour)}), ErrSubmitFailed)
	require.Equal(t, PhaseActive, h.c.Phase())

	late := h.after(10 * time.Minute)
	assert.ErrorIs(t, h.dispatch(AnswerSelected{Section: 0, Question: 0, Option: "a", At: late}), ErrTimeExpired)
	assert.ErrorIs(t, h.dispatch(ReviewToggled{Section: 0, Question: 0, At: late}), ErrTimeExpired)

	require.NoError(t, h.dispatch(FinishRequested{At: h.after(time.Second)}))
	require.NoError(t, h.dispatch(FinishConfirmed{At: h.after(time.Second)}))
	require.Equal(t, PhaseFinished, h.c.Phase())

	retried := h.sink.payloads[len(h.sink.payloads)-1]
	assert.Equal(t, 0, retried.CorrectAnswers)
	assert.Equal(t, model.NotAttended, retried.Answers[0].Selected)
}

func TestControllerStateReportsNoisePopups(t *testing.T) {
	h := startHarness(t)
	assert.Zero(t, h.c.State().NoisePopups)

	h.breach(CategoryNoise)

	state := h.c.State()
	assert.Equal(t, 1, state.NoisePopups)
	assert.Equal(t, 1, state.Warnings.Noise)
}

func TestControllerManualFinishNeedsHalfTheAnswers(t *testing.T) {
	h := startHarness(t)

	for q := range 4 {
		require.NoError(t, h.dispatch(AnswerSelected{Section: 0, Question: q, Option: "a", At: h.after(time.Second)}))
	}
	assert.ErrorIs(t, h.dispatch(FinishRequested{At: h.after(time.Second)}), ErrMinimumAnswers)
	assert.ErrorIs(t, h.dispatch(FinishConfirmed{At: h.after(time.Second)}), ErrMinimumAnswers)
	assert.Equal(t, ModalNone, h.c.Modal().Kind)

	require.NoError(t, h.dispatch(AnswerSelected{Section: 0, Question: 4, Option: "b", At: h.after(time.Second)}))
	require.NoError(t, h.dispatch(FinishRequested{At: h.after(time.Second)}))
	assert.Equal(t, ModalFinishConfirm, h.c.Modal().Kind)

	require.NoError(t, h.dispatch(FinishConfirmed{At: h.after(time.Second)}))
	assert.Equal(t, PhaseFinished, h.c.Phase())
	require.Len(t, h.sink.payloads, 1)

	p := h.sink.payloads[0]
	assert.Equal(t, string(ReasonManual), p.Reason)
	assert.Equal(t, 4, p.CorrectAnswers)
	assert.Equal(t, 40.0, p.Percentage)
	assert.Equal(t, model.GradeFail, p.Grade)
}

func TestControllerRejectsInvalidAnswers(t *testing.T) {
	h := startHarness(t)

	assert.ErrorIs(t, h.dispatch(AnswerSelected{Section: 0, Question: 10, Option: "a", At: h.after(time.Second)}), ErrInvalidQuestion)
	assert.ErrorIs(t, h.dispatch(AnswerSelected{Section: 1, Question: 0, Option: "a", At: h.after(time.Second)}), ErrInvalidQuestion)
	assert.ErrorIs(t, h.dispatch(AnswerSelected{Section: 0, Question: 0, Option: "z", At: h.after(time.Second)}), ErrInvalidOption)
	assert.ErrorIs(t, h.dispatch(SectionAdvanced{At: h.after(time.Second)}), ErrNotSectioned)
}

func TestControllerReloadRestoresSession(t *testing.T) {
	mem := store.NewMemory()
	clock := &fakeClock{now: t0}

	first := newHarness(t, mem, &countingSink{}, clock)
	require.NoError(t, first.dispatch(AnswerSelected{Section: 0, Question: 2, Option: "c", At: first.after(time.Second)}))
	require.NoError(t, first.dispatch(ReviewToggled{Section: 0, Question: 5, At: first.after(time.Second)}))
	first.breach(CategoryTabSwitch)
	first.breach(CategoryNoise)

	clock.Advance(5 * time.Minute)
	second := newHarness(t, mem, &countingSink{}, clock)

	assert.Equal(t, first.c.Counts(), second.c.Counts())
	v, ok := second.c.Answer(0, 2)
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	state := second.c.State()
	assert.True(t, state.Review[0][5])

	elapsed := int(clock.Now().Sub(t0) / time.Second)
	assert.Equal(t, 3600-elapsed, state.Timer.Remaining)
}

func TestControllerReloadAfterExpiryFinishesImmediately(t *testing.T) {
	mem := store.NewMemory()
	clock := &fakeClock{now: t0}
	newHarness(t, mem, &countingSink{}, clock)

	clock.Advance(2 * time.Hour)
	sink := &countingSink{}
	h := newHarness(t, mem, sink, clock)

	assert.Equal(t, PhaseFinished, h.c.Phase())
	assert.Equal(t, 1, sink.calls)
}

func TestControllerDisabledProctoring(t *testing.T) {
	h := startHarness(t, withProctoring(model.ProctoringConfig{}.Disabled()))

	assert.Empty(t, h.noticesOf(NoticeRequestFullscreen))
	h.breach(CategoryFullscreen)
	h.breach(CategoryTabSwitch)
	h.breach(CategoryNoise)
	h.breach(CategoryFace)

	assert.Equal(t, Counts{}, h.c.Counts())
	assert.Equal(t, PhaseActive, h.c.Phase())

	raw, _, _ := h.store.Get(h.ctx, h.c.Namespace(), config.KeyFullscreenEnabled)
	assert.Equal(t, "false", raw)
}

func TestControllerShowsOneModalAtATime(t *testing.T) {
	h := startHarness(t, withLimits(modelLimits(10, 10, 10, 10)))

	h.breach(CategoryNoise)
	assert.Equal(t, ModalNoiseWarning, h.c.Modal().Kind)

	h.breach(CategoryTabSwitch)
	assert.Equal(t, ModalNoiseWarning, h.c.Modal().Kind)
	assert.Equal(t, 1, h.c.Counts().TabSwitch)

	assert.ErrorIs(t, h.dispatch(FinishRequested{At: h.after(time.Second)}), ErrModalOpen)

	require.NoError(t, h.dispatch(ModalDismissed{At: h.after(time.Second)}))
	h.breach(CategoryTabSwitch)

	m := h.c.Modal()
	assert.Equal(t, ModalReturnToFullscreen, m.Kind)
	assert.Equal(t, 2, m.Count)
	assert.Equal(t, 20, m.Limit)
}

func TestControllerFaceWarningClearsOnRecovery(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.dispatch(FaceObserved{Faces: 0, At: h.after(time.Second)}))
	require.NoError(t, h.dispatch(FaceObserved{Faces: 0, At: h.after(time.Second)}))
	assert.Equal(t, ModalFaceWarning, h.c.Modal().Kind)

	require.NoError(t, h.dispatch(FaceObserved{Faces: 1, EyesOpen: true, Oriented: true, At: h.after(100 * time.Millisecond)}))
	assert.Equal(t, ModalNone, h.c.Modal().Kind)
	assert.Equal(t, 1, h.c.Counts().Face)
}

func TestControllerMediaFailureDisablesOnlyThatGuard(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.dispatch(MediaUnavailable{Device: DeviceCamera, Reason: "NotFoundError", At: h.after(time.Second)}))

	state := h.c.State()
	assert.False(t, state.Guards[CategoryFace])
	assert.True(t, state.Guards[CategoryNoise])
	assert.Equal(t, PhaseActive, h.c.Phase())
}

func TestControllerShuffledOrderSurvivesReload(t *testing.T) {
	mem := store.NewMemory()
	clock := &fakeClock{now: t0}
	paper := flatPaper(10)

	first := newHarness(t, mem, &countingSink{}, clock, withShuffle(), withPaper(paper))
	second := newHarness(t, mem, &countingSink{}, clock, withShuffle(), withPaper(paper))

	assert.Equal(t, first.c.QuestionOrder(), second.c.QuestionOrder())
	assert.True(t, second.c.QuestionOrder().fits(paper))

	shown := second.noticesOf(NoticePaper)[0].Paper.Sections[0].Questions
	for i, q := range shown {
		assert.Equal(t, second.c.QuestionOrder()[0][i], q.Index)
	}
}

func TestControllerSectionedFlow(t *testing.T) {
	h := startHarness(t, withPaper(sectionedPaper()))

	state := h.c.State()
	assert.Equal(t, 120, state.Timer.Remaining)
	assert.Equal(t, []int{60, 60}, state.Timer.SectionRemaining)

	assert.ErrorIs(t, h.dispatch(AnswerSelected{Section: 1, Question: 0, Option: "b", At: h.after(time.Second)}), ErrSectionLocked)
	require.NoError(t, h.dispatch(AnswerSelected{Section: 0, Question: 0, Option: "b", At: h.after(time.Second)}))

	// Section 0 runs out and hands over to section 1.
	require.NoError(t, h.dispatch(Tick{At: t0.Add(61 * time.Second)}))
	h.clock.now = t0.Add(61 * time.Second)
	assert.Equal(t, 1, h.c.State().Timer.SectionIndex)
	assert.ErrorIs(t, h.dispatch(AnswerSelected{Section: 0, Question: 1, Option: "b", At: h.after(time.Second)}), ErrSectionLocked)
	require.NoError(t, h.dispatch(AnswerSelected{Section: 1, Question: 1, Option: "a", At: h.after(time.Second)}))
	assert.ErrorIs(t, h.dispatch(SectionAdvanced{At: h.after(time.Second)}), ErrLastSection)

	require.NoError(t, h.dispatch(Tick{At: t0.Add(121 * time.Second)}))
	assert.Equal(t, PhaseFinished, h.c.Phase())

	require.Len(t, h.sink.payloads, 1)
	p := h.sink.payloads[0]
	assert.Equal(t, string(ReasonTimeExpired), p.Reason)
	require.Len(t, p.SectionAnswers, 2)
	assert.Equal(t, 1, p.CorrectAnswers)
}
