package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// ContestSource provides a contest's paper and configuration.
type ContestSource interface {
	proctor.PaperProvider
	Config(ctx context.Context, contestID string) (*model.TestConfig, error)
}

// CompletionChecker reports whether a contest was already submitted.
type CompletionChecker interface {
	Completed(ctx context.Context, contestID string, studentID int) (bool, error)
}

// SessionDeps groups the collaborators of a SessionService.
type SessionDeps struct {
	Contests      ContestSource
	Completion    CompletionChecker
	Store         proctor.SessionStore
	Sink          proctor.ResultSink
	Journal       proctor.Journal
	Defaults      *config.ProctorDefaults
	SubmitTimeout time.Duration
	Clock         proctor.Clock
	Log           zerolog.Logger
}

// SessionState is the reload view served over HTTP.
type SessionState struct {
	ContestID string              `json:"contest_id"`
	StudentID int                 `json:"student_id"`
	Duration  int                 `json:"duration"`
	Limits    model.WarningLimits `json:"limits"`
	*proctor.Snapshot
}

// SessionService builds proctoring controllers and keeps at most one live
// connection per student and contest.
type SessionService struct {
	deps SessionDeps
	log  zerolog.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

type liveSession struct {
	cancel context.CancelFunc
}

// NewSessionService creates a new SessionService.
func NewSessionService(deps SessionDeps) *SessionService {
	if deps.Clock == nil {
		deps.Clock = proctor.SystemClock{}
	}
	if deps.Journal == nil {
		deps.Journal = proctor.NopJournal{}
	}
	return &SessionService{
		deps: deps,
		log:  deps.Log.With().Str("component", "session_service").Logger(),
		live: make(map[string]*liveSession),
	}
}

// Tuning converts the server-wide defaults into controller tuning.
func (s *SessionService) Tuning() proctor.Tuning {
	return TuningFromDefaults(s.deps.Defaults, s.deps.SubmitTimeout)
}

// TuningFromDefaults maps proctor defaults onto controller tuning. A nil
// defaults value yields proctor.DefaultTuning.
func TuningFromDefaults(d *config.ProctorDefaults, submitTimeout time.Duration) proctor.Tuning {
	t := proctor.DefaultTuning()
	if submitTimeout > 0 {
		t.SubmitTimeout = submitTimeout
	}
	if d == nil {
		return t
	}

	t.FullscreenDebounce = d.FullscreenDebounce
	t.FocusDebounce = d.FocusDebounce
	t.FocusPoll = d.FocusPollInterval
	t.Noise = proctor.NoiseOptions{
		Upper:    d.NoiseUpper,
		Lower:    d.NoiseLower,
		Window:   d.NoiseWindow,
		Debounce: d.NoiseDebounce,
	}
	t.FaceDebounce = d.FaceDebounce
	t.FaceEscalation = d.FaceEscalation
	t.TickInterval = d.TickInterval
	t.MinimumAnswerRatio = d.MinimumAnswerRatio
	return t
}

// Limits returns the contest's warning limits, falling back to the server
// defaults for contests that do not set their own.
func (s *SessionService) Limits(cfg *model.TestConfig) model.WarningLimits {
	return LimitsFor(cfg, s.deps.Defaults)
}

// LimitsFor resolves the warning limits of a contest.
func LimitsFor(cfg *model.TestConfig, d *config.ProctorDefaults) model.WarningLimits {
	if cfg.Proctoring.Limits != nil {
		return *cfg.Proctoring.Limits
	}
	if d != nil {
		return model.WarningLimits{
			Fullscreen: d.LimitFullscreen,
			TabSwitch:  d.LimitTabSwitch,
			Noise:      d.LimitNoise,
			Face:       d.LimitFace,
		}
	}
	return model.WarningLimits{Fullscreen: 3, TabSwitch: 3, Noise: 3, Face: 3}
}

func (s *SessionService) minViewport() int {
	if d := s.deps.Defaults; d != nil {
		return d.MinViewportPx
	}
	return 1024
}

// Precheck tells the client whether it may start the contest on this device.
func (s *SessionService) Precheck(ctx context.Context, contestID string, studentID int, info model.ClientInfo) (*model.PrecheckResponse, error) {
	cfg, err := s.admit(ctx, contestID, studentID)
	if err != nil {
		return nil, err
	}

	if cfg.Proctoring.DeviceRestriction {
		if err := proctor.CheckDevice(info, s.minViewport()); err != nil {
			return &model.PrecheckResponse{Allowed: false, Reason: err.Error()}, nil
		}
	}
	return &model.PrecheckResponse{Allowed: true}, nil
}

// Open builds and initialises the controller for one attempt. Persisted state
// is restored, so reopening after a disconnect resumes the session.
func (s *SessionService) Open(ctx context.Context, contestID string, studentID int, info model.ClientInfo, notifier proctor.Notifier) (*proctor.Controller, error) {
	cfg, err := s.admit(ctx, contestID, studentID)
	if err != nil {
		return nil, err
	}

	if cfg.Proctoring.DeviceRestriction {
		if err := proctor.CheckDevice(info, s.minViewport()); err != nil {
			return nil, err
		}
	}

	ctrl := proctor.NewController(proctor.Session{
		ContestID: contestID,
		StudentID: studentID,
		Config:    *cfg,
		Limits:    s.Limits(cfg),
	}, s.Tuning(), proctor.Deps{
		Store:    s.deps.Store,
		Papers:   s.deps.Contests,
		Sink:     s.deps.Sink,
		Journal:  s.deps.Journal,
		Notifier: notifier,
		Clock:    s.deps.Clock,
		Log:      s.deps.Log,
	})

	if err := ctrl.Init(ctx); err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	return ctrl, nil
}

// State reads the persisted session for reload UIs without starting it.
func (s *SessionService) State(ctx context.Context, contestID string, studentID int) (*SessionState, error) {
	cfg, err := s.admit(ctx, contestID, studentID)
	if err != nil {
		return nil, err
	}

	paper, err := s.deps.Contests.Paper(ctx, contestID)
	if err != nil {
		return nil, err
	}

	duration := proctor.SessionDuration(paper, *cfg)
	ns := config.CacheKey.SessionNamespace(contestID, studentID)

	snap, err := proctor.ReadSnapshot(ctx, s.deps.Store, ns, duration, s.deps.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	return &SessionState{
		ContestID: contestID,
		StudentID: studentID,
		Duration:  duration,
		Limits:    s.Limits(cfg),
		Snapshot:  snap,
	}, nil
}

// Attach registers a live connection and cancels the previous one for the
// same attempt. The returned release must be called when the connection ends.
func (s *SessionService) Attach(contestID string, studentID int, cancel context.CancelFunc) (release func()) {
	key := config.CacheKey.SessionNamespace(contestID, studentID)
	entry := &liveSession{cancel: cancel}

	s.mu.Lock()
	prev := s.live[key]
	s.live[key] = entry
	s.mu.Unlock()

	if prev != nil {
		s.log.Info().
			Str("contest_id", contestID).
			Int("student_id", studentID).
			Msg("Replacing previous connection")
		prev.cancel()
	}

	return func() {
		s.mu.Lock()
		if s.live[key] == entry {
			delete(s.live, key)
		}
		s.mu.Unlock()
	}
}

// LiveCount reports how many sessions currently have a connection.
func (s *SessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// admit loads the contest configuration after making sure the attempt is
// still open.
func (s *SessionService) admit(ctx context.Context, contestID string, studentID int) (*model.TestConfig, error) {
	done, err := s.deps.Completion.Completed(ctx, contestID, studentID)
	if err != nil {
		if errors.Is(err, ErrContestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("check completion: %w", err)
	}
	if done {
		return nil, ErrSessionCompleted
	}

	cfg, err := s.deps.Contests.Config(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
