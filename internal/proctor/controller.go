package proctor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Phase is the session lifecycle state. Transitions only go forward.
type Phase string

const (
	PhaseLoading  Phase = "loading"
	PhaseActive   Phase = "active"
	PhaseFinished Phase = "finished"
)

// PaperProvider returns the full paper, answer key included.
type PaperProvider interface {
	Paper(ctx context.Context, contestID string) (*model.Paper, error)
}

// Tuning holds server-wide detector and session settings.
type Tuning struct {
	FullscreenDebounce time.Duration
	FocusDebounce      time.Duration
	FocusPoll          time.Duration
	Noise              NoiseOptions
	FaceDebounce       time.Duration
	FaceEscalation     time.Duration
	TickInterval       time.Duration
	SubmitTimeout      time.Duration
	MinimumAnswerRatio float64
}

func DefaultTuning() Tuning {
	return Tuning{
		FullscreenDebounce: time.Second,
		FocusDebounce:      500 * time.Millisecond,
		FocusPoll:          time.Second,
		Noise:              NoiseOptions{Upper: 128, Lower: 100, Window: 8, Debounce: time.Second},
		FaceDebounce:       time.Second,
		FaceEscalation:     15 * time.Second,
		TickInterval:       time.Second,
		SubmitTimeout:      10 * time.Second,
		MinimumAnswerRatio: 0.5,
	}
}

// Session identifies one student's attempt at a contest.
type Session struct {
	ContestID string
	StudentID int
	Config    model.TestConfig
	Limits    model.WarningLimits
}

type Deps struct {
	Store    SessionStore
	Papers   PaperProvider
	Sink     ResultSink
	Journal  Journal
	Notifier Notifier
	Clock    Clock
	Log      zerolog.Logger
}

type emission struct {
	violation *Violation
	command   *Command
}

type emissionQueue struct {
	items []emission
}

func (q *emissionQueue) Violation(v Violation) { q.items = append(q.items, emission{violation: &v}) }
func (q *emissionQueue) Command(c Command) { q.items = append(q.items, emission{command: &c}) }

// Controller owns one session. All methods must be called from a single
// goroutine; Run provides one.
type Controller struct {
	sess      Session
	tuning    Tuning
	namespace string

	store     SessionStore
	papers    PaperProvider
	submitter *Submitter
	journal   Journal
	notifier  Notifier
	clock     Clock
	log       zerolog.Logger

	phase             Phase
	paper             *model.Paper
	order             QuestionOrder
	timer             *Timer
	sections          *SectionClock
	ledger            *Ledger
	answers           AnswerSet
	review            ReviewMarks
	current           Position
	modal             Modal
	fullscreenEnabled bool

	fullscreen *FullscreenGuard
	focus      *FocusGuard
	noise      *NoiseGuard
	presence   *PresenceGuard
	guards     []Guard
	queue      emissionQueue

	timeExpired bool
	forced      Reason
	submitting  bool
	result      *model.SubmissionPayload
}

func NewController(sess Session, tuning Tuning, deps Deps) *Controller {
	if deps.Journal == nil {
		deps.Journal = NopJournal{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(Notice) {})
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	ns := config.CacheKey.SessionNamespace(sess.ContestID, sess.StudentID)

	return &Controller{
		sess:      sess,
		tuning:    tuning,
		namespace: ns,
		store:     deps.Store,
		papers:    deps.Papers,
		submitter: NewSubmitter(deps.Sink, tuning.SubmitTimeout),
		journal:   deps.Journal,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		log: deps.Log.With().
			Str("contest_id", sess.ContestID).
			Int("student_id", sess.StudentID).
			Logger(),
		phase:   PhaseLoading,
		ledger:  NewLedger(deps.Store, ns),
		answers: make(AnswerSet),
		review:  make(ReviewMarks),
	}
}

func (c *Controller) Phase() Phase { return c.phase }
func (c *Controller) Namespace() string { return c.namespace }
func (c *Controller) Counts() Counts { return c.ledger.Counts() }
func (c *Controller) Modal() Modal { return c.modal }
func (c *Controller) Result() *model.SubmissionPayload { return c.result }
func (c *Controller) QuestionOrder() QuestionOrder { return c.order }
func (c *Controller) Answer(section, question int) (string, bool) {
	return c.answers.Get(section, question)
}

// Init loads the paper, restores persisted state and activates the session.
// On error the session stays in PhaseLoading.
func (c *Controller) Init(ctx context.Context) error {
	if c.phase != PhaseLoading {
		return nil
	}
	now := c.clock.Now()

	paper, err := c.papers.Paper(ctx, c.sess.ContestID)
	if err != nil {
		return fmt.Errorf("load paper: %w", err)
	}
	if paper.TotalQuestions() == 0 {
		return ErrEmptyPaper
	}
	c.paper = paper

	duration := SessionDuration(paper, c.sess.Config)
	if paper.Mode == model.ExamModeSectioned {
		durations := make([]int, len(paper.Sections))
		for i, s := range paper.Sections {
			durations[i] = s.Duration.Seconds()
		}
		c.sections = NewSectionClock(c.store, c.namespace, durations)
	}

	c.timer = NewTimer(c.store, c.namespace, duration)
	if err := c.timer.Start(ctx, now); err != nil {
		return err
	}
	if c.sections != nil {
		if err := c.sections.Start(ctx, now); err != nil {
			return err
		}
	}
	if err := c.ledger.Load(ctx); err != nil {
		return err
	}
	if err := c.restoreAnswers(ctx); err != nil {
		return err
	}
	if err := c.restoreOrder(ctx); err != nil {
		return err
	}
	if err := c.restoreFullscreenFlag(ctx); err != nil {
		return err
	}

	proctoring := c.sess.Config.Proctoring
	c.fullscreen = NewFullscreenGuard(c.fullscreenEnabled, c.tuning.FullscreenDebounce, c.log)
	c.focus = NewFocusGuard(c.fullscreenEnabled, c.tuning.FocusDebounce, c.tuning.FocusPoll)
	c.noise = NewNoiseGuard(proctoring.Noise, c.tuning.Noise, c.log)
	c.presence = NewPresenceGuard(proctoring.Face, c.tuning.FaceDebounce, c.tuning.FaceEscalation, c.log)
	c.guards = []Guard{c.fullscreen, c.focus, c.noise, c.presence}

	c.current = c.firstOf(c.currentSection())
	c.phase = PhaseActive

	c.log.Info().
		Str("mode", string(paper.Mode)).
		Int("duration", duration).
		Int("remaining", c.timer.Remaining(now)).
		Msg("Session active")

	c.notifier.Notify(Notice{Kind: NoticePaper, Paper: clientPaper(paper, c.order)})
	for _, g := range c.guards {
		g.Start(now, &c.queue)
	}
	c.drain(ctx)
	c.notifyState()

	// Catch up on a budget that ran out while the client was away.
	if err := c.Dispatch(ctx, Tick{At: now}); err != nil {
		c.alert(err)
	}
	return nil
}

// Run dispatches events and ticks until the session finishes, the event
// channel closes or ctx is cancelled.
func (c *Controller) Run(ctx context.Context, events <-chan Event) error {
	ticker := time.NewTicker(c.tuning.TickInterval)
	defer ticker.Stop()

	for c.phase == PhaseActive {
		select {
		case <-ctx.Done():
			c.stopGuards()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				c.stopGuards()
				return nil
			}
			if err := c.Dispatch(ctx, ev); err != nil {
				c.alert(err)
			}
		case <-ticker.C:
			if err := c.Dispatch(ctx, Tick{At: c.clock.Now()}); err != nil {
				c.alert(err)
			}
		}
	}
	return nil
}

// Dispatch routes one event to the guards and the session, applies queued
// emissions in order, then evaluates termination.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	if c.phase != PhaseActive {
		return ErrNotActive
	}
	now := ev.when()

	for _, g := range c.guards {
		g.Handle(ev, &c.queue)
	}

	err := c.apply(ctx, ev)
	c.drain(ctx)

	if evalErr := c.evaluate(ctx, now); err == nil {
		err = evalErr
	}
	return err
}

func (c *Controller) apply(ctx context.Context, ev Event) error {
	// Once time is up only a submission retry may change the outcome.
	if c.timeExpired {
		switch ev.(type) {
		case AnswerSelected, ReviewToggled, SectionAdvanced:
			return ErrTimeExpired
		}
	}

	switch e := ev.(type) {
	case Tick:
		c.onTick(ctx, e.At)
	case AnswerSelected:
		return c.selectAnswer(ctx, e)
	case ReviewToggled:
		if err := c.checkQuestion(e.Section, e.Question); err != nil {
			return err
		}
		c.review.Toggle(e.Section, e.Question)
		if err := saveJSON(ctx, c.store, c.namespace, config.KeyReviewMarks, c.review); err != nil {
			c.log.Error().Err(err).Msg("Failed to persist review marks")
		}
		c.notifyState()
	case Navigated:
		if err := c.checkQuestion(e.Section, e.Question); err != nil {
			return err
		}
		c.current = Position{Section: e.Section, Question: e.Question}
		c.notifyState()
	case SectionAdvanced:
		return c.advanceSection(ctx, e.At)
	case FinishRequested:
		return c.requestFinish()
	case FinishConfirmed:
		return c.confirmFinish(ctx, e.At)
	case ModalDismissed:
		kind := c.modal.Kind
		c.setModal(Modal{})
		if kind == ModalReturnToFullscreen && c.fullscreen.Active() && !c.fullscreen.Fullscreen() {
			c.notifier.Notify(Notice{Kind: NoticeRequestFullscreen})
		}
	case MediaUnavailable:
		c.log.Warn().Str("device", string(e.Device)).Str("reason", e.Reason).Msg("Media device unavailable")
		c.notifyState()
	case BeforeUnload:
		c.log.Info().Msg("Student tried to leave the exam page")
	}
	return nil
}

func (c *Controller) drain(ctx context.Context) {
	for len(c.queue.items) > 0 && c.phase == PhaseActive {
		e := c.queue.items[0]
		c.queue.items = c.queue.items[1:]

		if e.violation != nil {
			c.recordViolation(ctx, *e.violation)
		} else {
			c.runCommand(*e.command)
		}
	}
	c.queue.items = nil
}

func (c *Controller) recordViolation(ctx context.Context, v Violation) {
	n, err := c.ledger.Record(ctx, v.Category)
	if err != nil {
		c.log.Error().Err(err).Str("category", string(v.Category)).Msg("Failed to persist warning counter")
	}

	entry := c.log.Warn().
		Str("category", string(v.Category)).
		Str("detail", v.Detail).
		Int("count", n)
	if v.Category == CategoryNoise {
		entry = entry.Int("noise_popups", c.noise.Popups())
	}
	entry.Msg("Violation recorded")

	if err := c.journal.Violation(ctx, ViolationEntry{
		ContestID: c.sess.ContestID,
		StudentID: c.sess.StudentID,
		Category:  v.Category,
		Detail:    v.Detail,
		Count:     n,
		At:        v.At,
	}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to journal violation")
	}

	counts := c.ledger.Counts()
	switch v.Category {
	case CategoryFullscreen, CategoryTabSwitch:
		c.showModal(Modal{
			Kind:  ModalReturnToFullscreen,
			Count: counts.Fullscreen + counts.TabSwitch,
			Limit: c.sess.Limits.Fullscreen + c.sess.Limits.TabSwitch,
		})
		if v.Category == CategoryTabSwitch && c.fullscreen.Active() && !c.fullscreen.Fullscreen() {
			c.notifier.Notify(Notice{Kind: NoticeRequestFullscreen})
		}
	case CategoryNoise:
		c.showModal(Modal{Kind: ModalNoiseWarning, Count: counts.Noise, Limit: c.sess.Limits.Noise})
	case CategoryFace:
		c.showModal(Modal{Kind: ModalFaceWarning, Count: counts.Face, Limit: c.sess.Limits.Face})
	}
}

func (c *Controller) runCommand(cmd Command) {
	switch cmd.Kind {
	case CommandRequestFullscreen:
		c.notifier.Notify(Notice{Kind: NoticeRequestFullscreen})
	case CommandFacePrompt:
		c.showModal(Modal{Kind: ModalFacePrompt})
	case CommandCancelFaceWarning:
		if c.modal.Kind == ModalFaceWarning || c.modal.Kind == ModalFacePrompt {
			c.setModal(Modal{})
		}
	}
}

// showModal displays m unless a different modal is already up. A repeated
// modal refreshes its counter; the face prompt may replace a face warning.
func (c *Controller) showModal(m Modal) {
	switch {
	case c.modal.Kind == ModalNone,
		c.modal.Kind == m.Kind,
		m.Kind == ModalFacePrompt && c.modal.Kind == ModalFaceWarning:
		c.setModal(m)
	}
}

func (c *Controller) setModal(m Modal) {
	if c.modal == m {
		return
	}
	c.modal = m
	c.notifier.Notify(Notice{Kind: NoticeModal, Modal: &m})
}

func (c *Controller) onTick(ctx context.Context, now time.Time) {
	remaining, expired := c.timer.Tick(now)

	if c.sections != nil {
		advanced, finished, err := c.sections.Tick(ctx, now)
		if err != nil {
			c.log.Error().Err(err).Msg("Failed to persist section clock")
		}
		if advanced {
			c.current = c.firstOf(c.sections.Current())
			c.log.Info().Int("section", c.sections.Current()).Msg("Section time ran out, moved to next section")
			c.notifyState()
		}
		if finished {
			expired = true
		}
	}

	if expired {
		c.timeExpired = true
	}

	view := c.timerView(now)
	view.Remaining = remaining
	c.notifier.Notify(Notice{Kind: NoticeTimer, Timer: &view})
}

func (c *Controller) evaluate(ctx context.Context, now time.Time) error {
	if c.phase != PhaseActive || c.submitting || c.forced != "" {
		return nil
	}
	switch {
	case c.timeExpired:
		return c.terminate(ctx, ReasonTimeExpired, now)
	case c.ledger.BreachesAll(c.sess.Limits):
		return c.terminate(ctx, ReasonViolations, now)
	}
	return nil
}

func (c *Controller) selectAnswer(ctx context.Context, e AnswerSelected) error {
	if err := c.checkQuestion(e.Section, e.Question); err != nil {
		return err
	}
	q := c.paper.QuestionsIn(e.Section)[e.Question]
	if !slices.Contains(q.Options, e.Option) {
		return ErrInvalidOption
	}

	c.answers.Set(e.Section, e.Question, e.Option)
	c.current = Position{Section: e.Section, Question: e.Question}

	if err := saveJSON(ctx, c.store, c.namespace, config.KeyAnswers, c.answers); err != nil {
		c.log.Error().Err(err).Msg("Failed to persist answers")
	}
	if err := c.journal.Answer(ctx, AnswerEntry{
		ContestID: c.sess.ContestID,
		StudentID: c.sess.StudentID,
		Section:   e.Section,
		Question:  e.Question,
		Answer:    e.Option,
		At:        e.At,
	}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to journal answer")
	}

	c.notifyState()
	return nil
}

func (c *Controller) checkQuestion(section, question int) error {
	if section < 0 || section >= c.paper.SectionCount() {
		return ErrInvalidQuestion
	}
	if c.sections != nil && c.sections.Locked(section) {
		return ErrSectionLocked
	}
	if question < 0 || question >= len(c.paper.QuestionsIn(section)) {
		return ErrInvalidQuestion
	}
	return nil
}

func (c *Controller) advanceSection(ctx context.Context, now time.Time) error {
	if c.sections == nil {
		return ErrNotSectioned
	}
	if err := c.sections.Advance(ctx, now); err != nil {
		return err
	}
	c.current = c.firstOf(c.sections.Current())
	c.notifyState()
	return nil
}

func (c *Controller) requestFinish() error {
	if c.submitting {
		return ErrSubmitting
	}
	if c.modal.Kind != ModalNone && c.modal.Kind != ModalFinishConfirm {
		return ErrModalOpen
	}
	if c.forced == "" && !c.meetsMinimum() {
		return ErrMinimumAnswers
	}
	c.showModal(Modal{Kind: ModalFinishConfirm})
	return nil
}

func (c *Controller) confirmFinish(ctx context.Context, now time.Time) error {
	if c.submitting {
		return ErrSubmitting
	}
	if c.forced != "" {
		return c.terminate(ctx, c.forced, now)
	}
	if !c.meetsMinimum() {
		return ErrMinimumAnswers
	}
	if c.modal.Kind == ModalFinishConfirm {
		c.setModal(Modal{})
	}
	return c.terminate(ctx, ReasonManual, now)
}

func (c *Controller) meetsMinimum() bool {
	return meetsMinimum(c.answers.Count(), c.paper.TotalQuestions(), c.tuning.MinimumAnswerRatio)
}

// terminate submits once and finishes the session. A failed submission keeps
// the session active; a forced reason is remembered so the student can retry
// from the finish dialog without the answer minimum.
func (c *Controller) terminate(ctx context.Context, reason Reason, now time.Time) error {
	if c.phase != PhaseActive {
		return ErrNotActive
	}
	if c.submitting {
		return ErrSubmitting
	}
	if reason != ReasonManual {
		c.forced = reason
	}

	c.submitting = true
	payload := BuildPayload(PayloadInput{
		Paper:          c.paper,
		StudentID:      c.sess.StudentID,
		Answers:        c.answers,
		Counts:         c.ledger.Counts(),
		PassPercentage: c.sess.Config.PassPercentage,
		Reason:         reason,
		At:             now,
	})
	err := c.submitter.Submit(ctx, payload)
	c.submitting = false

	if err != nil {
		c.log.Error().Err(err).Str("reason", string(reason)).Msg("Submission failed")
		return err
	}

	c.finish(ctx, reason, payload)
	return nil
}

func (c *Controller) finish(ctx context.Context, reason Reason, payload *model.SubmissionPayload) {
	c.phase = PhaseFinished
	c.result = payload
	c.stopGuards()
	c.modal = Modal{}

	c.notifier.Notify(Notice{Kind: NoticeStopMedia})

	if err := c.store.Clear(ctx, c.namespace); err != nil {
		c.log.Error().Err(err).Msg("Failed to clear session state")
	}

	c.log.Info().
		Str("reason", string(reason)).
		Str("grade", payload.Grade).
		Float64("percentage", payload.Percentage).
		Msg("Session finished")

	c.notifier.Notify(Notice{Kind: NoticeFinished, Finished: &FinishedView{
		Reason:     reason,
		Grade:      payload.Grade,
		Percentage: payload.Percentage,
	}})
}

func (c *Controller) stopGuards() {
	for _, g := range c.guards {
		g.Stop()
	}
}

func (c *Controller) alert(err error) {
	if errors.Is(err, ErrNotActive) {
		return
	}
	c.notifier.Notify(Notice{Kind: NoticeAlert, Alert: err.Error()})
}

// State returns the client-visible session state.
func (c *Controller) State() StateView {
	now := c.clock.Now()
	v := StateView{
		Phase:    c.phase,
		Current:  c.current,
		Answers:  c.answers.Clone(),
		Review:   c.review.Clone(),
		Warnings: c.ledger.Counts(),
		Limits:   c.sess.Limits,
		Modal:    c.modal,
		Guards:   make(map[Category]bool, len(c.guards)),
	}
	if c.noise != nil {
		v.NoisePopups = c.noise.Popups()
	}
	if c.timer != nil {
		v.Timer = c.timerView(now)
	}
	for _, g := range c.guards {
		v.Guards[g.Category()] = g.Active()
	}
	return v
}

func (c *Controller) notifyState() {
	s := c.State()
	c.notifier.Notify(Notice{Kind: NoticeState, State: &s})
}

func (c *Controller) timerView(now time.Time) TimerView {
	v := TimerView{Remaining: c.timer.Remaining(now)}
	if c.sections != nil {
		v.SectionIndex = c.sections.Current()
		v.SectionRemaining = c.sections.Remaining(now)
	}
	return v
}

func (c *Controller) currentSection() int {
	if c.sections != nil {
		return c.sections.Current()
	}
	return 0
}

func (c *Controller) firstOf(section int) Position {
	if section < len(c.order) && len(c.order[section]) > 0 {
		return Position{Section: section, Question: c.order[section][0]}
	}
	return Position{Section: section}
}

func (c *Controller) restoreAnswers(ctx context.Context) error {
	if _, err := loadJSON(ctx, c.store, c.namespace, config.KeyAnswers, &c.answers); err != nil {
		return err
	}
	if _, err := loadJSON(ctx, c.store, c.namespace, config.KeyReviewMarks, &c.review); err != nil {
		return err
	}
	if c.answers == nil {
		c.answers = make(AnswerSet)
	}
	if c.review == nil {
		c.review = make(ReviewMarks)
	}
	return nil
}

func (c *Controller) restoreOrder(ctx context.Context) error {
	var order QuestionOrder
	ok, err := loadJSON(ctx, c.store, c.namespace, config.KeyQuestionOrder, &order)
	if err != nil {
		return err
	}
	if ok && order.fits(c.paper) {
		c.order = order
		return nil
	}

	if !c.sess.Config.ShuffleQuestions {
		c.order = identityOrder(c.paper)
		return saveJSON(ctx, c.store, c.namespace, config.KeyQuestionOrder, c.order)
	}

	c.order = shuffledOrder(c.paper)
	if err := saveJSON(ctx, c.store, c.namespace, config.KeyQuestionOrder, c.order); err != nil {
		return err
	}
	if err := c.journal.QuestionOrder(ctx, OrderEntry{
		ContestID: c.sess.ContestID,
		StudentID: c.sess.StudentID,
		Order:     c.order,
	}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to journal question order")
	}
	return nil
}

func (c *Controller) restoreFullscreenFlag(ctx context.Context) error {
	raw, ok, err := c.store.Get(ctx, c.namespace, config.KeyFullscreenEnabled)
	if err != nil {
		return fmt.Errorf("load fullscreen flag: %w", err)
	}
	if ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			c.fullscreenEnabled = v
			return nil
		}
	}

	c.fullscreenEnabled = c.sess.Config.Proctoring.Fullscreen
	if err := c.store.Set(ctx, c.namespace, config.KeyFullscreenEnabled, strconv.FormatBool(c.fullscreenEnabled)); err != nil {
		return fmt.Errorf("persist fullscreen flag: %w", err)
	}
	return nil
}
