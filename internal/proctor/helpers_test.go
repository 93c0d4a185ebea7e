package proctor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var t0 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) time.Time {
	f.now = f.now.Add(d)
	return f.now
}

type recorder struct {
	violations []Violation
	commands   []Command
}

func (r *recorder) Violation(v Violation) { r.violations = append(r.violations, v) }
func (r *recorder) Command(c Command) { r.commands = append(r.commands, c) }

type countingSink struct {
	mu       sync.Mutex
	calls    int
	failures int
	payloads []*model.SubmissionPayload
}

func (s *countingSink) Submit(_ context.Context, p *model.SubmissionPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("scoring endpoint unavailable")
	}
	s.payloads = append(s.payloads, p)
	return nil
}

type staticPapers struct {
	paper *model.Paper
	err   error
}

func (s staticPapers) Paper(context.Context, string) (*model.Paper, error) {
	return s.paper, s.err
}

func flatPaper(n int) *model.Paper {
	p := &model.Paper{ContestID: "c1", Title: "Physics", Mode: model.ExamModeFlat}
	for i := range n {
		p.Questions = append(p.Questions, model.Question{
			Text:          "q" + string(rune('A'+i)),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
		})
	}
	return p
}

func sectionedPaper() *model.Paper {
	q := func(text string) model.Question {
		return model.Question{Text: text, Options: []string{"a", "b"}, CorrectAnswer: "b"}
	}
	return &model.Paper{
		ContestID: "c2",
		Title:     "Aptitude",
		Mode:      model.ExamModeSectioned,
		Sections: []model.Section{
			{Name: "Verbal", Duration: model.SectionDuration{Minutes: 1}, Questions: []model.Question{q("v1"), q("v2")}},
			{Name: "Numeric", Duration: model.SectionDuration{Minutes: 1}, Questions: []model.Question{q("n1"), q("n2")}},
		},
	}
}

func fullProctoring() model.ProctoringConfig {
	return model.ProctoringConfig{Fullscreen: true, Face: true, Noise: true}
}

func modelLimits(fullscreen, tab, noise, face int) model.WarningLimits {
	return model.WarningLimits{Fullscreen: fullscreen, TabSwitch: tab, Noise: noise, Face: face}
}
