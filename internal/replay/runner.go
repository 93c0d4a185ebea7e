package replay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/store"
)

// Start is the wall-clock instant a replayed session begins at.
var Start = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// Options tune a replay.
type Options struct {
	Tuning proctor.Tuning
	Limits func(cfg *model.TestConfig) model.WarningLimits
	Log    zerolog.Logger
}

// Entry is one notice observed during the replay.
type Entry struct {
	Offset time.Duration
	Notice proctor.Notice
}

// StepError is a step the session rejected.
type StepError struct {
	Step   int
	Offset time.Duration
	Err    error
}

// Result is everything a replay produced.
type Result struct {
	Phase    proctor.Phase
	Elapsed  time.Duration
	Counts   proctor.Counts
	Payload  *model.SubmissionPayload
	Notices  []Entry
	Rejected []StepError
}

// Count reports how many notices of kind were emitted.
func (r *Result) Count(kind proctor.NoticeKind) int {
	n := 0
	for _, e := range r.Notices {
		if e.Notice.Kind == kind {
			n++
		}
	}
	return n
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

type captureSink struct{ payload *model.SubmissionPayload }

func (s *captureSink) Submit(_ context.Context, p *model.SubmissionPayload) error {
	s.payload = p
	return nil
}

type scriptPapers struct{ paper *model.Paper }

func (s scriptPapers) Paper(context.Context, string) (*model.Paper, error) { return s.paper, nil }

// Run replays the script against a fresh in-memory session. Ticks are
// dispatched at the tuning's tick interval between steps, so time-based
// detectors and the timer behave as they would live.
func Run(ctx context.Context, s *Script, opts Options) (*Result, error) {
	if opts.Tuning.TickInterval <= 0 {
		opts.Tuning = proctor.DefaultTuning()
	}

	cfg := s.Config()
	limits := model.WarningLimits{Fullscreen: 3, TabSwitch: 3, Noise: 3, Face: 3}
	switch {
	case opts.Limits != nil:
		limits = opts.Limits(&cfg)
	case cfg.Proctoring.Limits != nil:
		limits = *cfg.Proctoring.Limits
	}

	clock := &manualClock{now: Start}
	sink := &captureSink{}
	res := &Result{}

	ctrl := proctor.NewController(proctor.Session{
		ContestID: cfg.ContestID,
		StudentID: s.Student,
		Config:    cfg,
		Limits:    limits,
	}, opts.Tuning, proctor.Deps{
		Store:  store.NewMemory(),
		Papers: scriptPapers{paper: s.Paper()},
		Sink:   sink,
		Notifier: proctor.NotifierFunc(func(n proctor.Notice) {
			res.Notices = append(res.Notices, Entry{Offset: clock.now.Sub(Start), Notice: n})
		}),
		Clock: clock,
		Log:   opts.Log,
	})

	if err := ctrl.Init(ctx); err != nil {
		return nil, err
	}

	tickUntil := func(target time.Time) {
		for ctrl.Phase() == proctor.PhaseActive {
			next := clock.now.Add(opts.Tuning.TickInterval)
			if next.After(target) {
				break
			}
			clock.now = next
			_ = ctrl.Dispatch(ctx, proctor.Tick{At: next})
		}
		if ctrl.Phase() == proctor.PhaseActive && target.After(clock.now) {
			clock.now = target
		}
	}

	for i, step := range s.Steps {
		if ctrl.Phase() != proctor.PhaseActive {
			break
		}
		tickUntil(Start.Add(step.At))

		ev, err := step.request().ToEvent(clock.now)
		if err == nil {
			err = ctrl.Dispatch(ctx, ev)
		}
		if err != nil && !errors.Is(err, proctor.ErrNotActive) {
			res.Rejected = append(res.Rejected, StepError{Step: i + 1, Offset: step.At, Err: err})
		}
	}

	if s.RunOut {
		// One tick past the budget is always enough for the timer to expire.
		limit := Start.Add(time.Duration(proctor.SessionDuration(s.Paper(), cfg))*time.Second + opts.Tuning.TickInterval)
		tickUntil(limit)
	}

	res.Phase = ctrl.Phase()
	res.Elapsed = clock.now.Sub(Start)
	res.Counts = ctrl.Counts()
	res.Payload = sink.payload
	return res, nil
}
