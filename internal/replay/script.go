// Package replay drives a proctoring session from a scripted event log on a
// manual clock. It is used to reproduce incidents and tune thresholds offline.
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
	"gopkg.in/yaml.v3"
)

var ErrStepsOutOfOrder = errors.New("steps must be ordered by offset")

// Script is a contest plus the client messages received during one attempt.
type Script struct {
	Name    string      `yaml:"name"`
	Student int         `yaml:"student"`
	Contest ContestSpec `yaml:"contest"`
	Steps   []Step      `yaml:"steps"`

	// RunOut keeps ticking after the last step until the session ends.
	RunOut bool `yaml:"run_out"`
}

type ContestSpec struct {
	Title            string         `yaml:"title"`
	Mode             model.ExamMode `yaml:"mode"`
	DurationMinutes  int            `yaml:"duration_minutes"`
	PassPercentage   float64        `yaml:"pass_percentage"`
	ShuffleQuestions bool           `yaml:"shuffle_questions"`
	Proctoring       ProctoringSpec `yaml:"proctoring"`
	Questions        []QuestionSpec `yaml:"questions"`
	Sections         []SectionSpec  `yaml:"sections"`
}

type ProctoringSpec struct {
	Fullscreen        bool        `yaml:"fullscreen"`
	Face              bool        `yaml:"face"`
	Noise             bool        `yaml:"noise"`
	DeviceRestriction bool        `yaml:"device_restriction"`
	Limits            *LimitsSpec `yaml:"limits"`
}

type LimitsSpec struct {
	Fullscreen int `yaml:"fullscreen"`
	TabSwitch  int `yaml:"tab_switch"`
	Noise      int `yaml:"noise"`
	Face       int `yaml:"face"`
}

type QuestionSpec struct {
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
	Correct string   `yaml:"correct"`
}

type SectionSpec struct {
	Name      string         `yaml:"name"`
	Hours     int            `yaml:"hours"`
	Minutes   int            `yaml:"minutes"`
	Questions []QuestionSpec `yaml:"questions"`
}

// Step is one client message, received At after the session started. Its
// fields mirror the WebSocket request.
type Step struct {
	At     time.Duration `yaml:"at"`
	Action ws.Action     `yaml:"action"`

	Active   bool   `yaml:"active"`
	Reason   string `yaml:"reason"`
	Key      string `yaml:"key"`
	Ctrl     bool   `yaml:"ctrl"`
	Alt      bool   `yaml:"alt"`
	Shift    bool   `yaml:"shift"`
	Meta     bool   `yaml:"meta"`
	Hidden   bool   `yaml:"hidden"`
	Focused  bool   `yaml:"focused"`
	Samples  []int  `yaml:"samples"`
	Faces    int    `yaml:"faces"`
	EyesOpen bool   `yaml:"eyes_open"`
	Oriented bool   `yaml:"oriented"`
	Device   string `yaml:"device"`
	Section  int    `yaml:"section"`
	Question int    `yaml:"question"`
	Option   string `yaml:"option"`
}

func (s Step) request() ws.Request {
	return ws.Request{
		Action:   s.Action,
		Active:   s.Active,
		Reason:   s.Reason,
		Key:      s.Key,
		Ctrl:     s.Ctrl,
		Alt:      s.Alt,
		Shift:    s.Shift,
		Meta:     s.Meta,
		Hidden:   s.Hidden,
		Focused:  s.Focused,
		Samples:  s.Samples,
		Faces:    s.Faces,
		EyesOpen: s.EyesOpen,
		Oriented: s.Oriented,
		Device:   s.Device,
		Section:  s.Section,
		Question: s.Question,
		Option:   s.Option,
	}
}

// LoadFile parses a script from disk.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a script.
func Load(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks ordering and that every step decodes to a session event.
func (s *Script) Validate() error {
	if s.Contest.Mode == "" {
		s.Contest.Mode = model.ExamModeFlat
	}
	if s.Contest.Mode != model.ExamModeFlat && s.Contest.Mode != model.ExamModeSectioned {
		return fmt.Errorf("unknown mode %q", s.Contest.Mode)
	}
	if s.Student == 0 {
		s.Student = 1
	}

	var last time.Duration
	for i, step := range s.Steps {
		if step.At < last {
			return fmt.Errorf("step %d at %s: %w", i+1, step.At, ErrStepsOutOfOrder)
		}
		last = step.At
		if _, err := step.request().ToEvent(time.Time{}); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Paper builds the contest paper, answer key included.
func (s *Script) Paper() *model.Paper {
	p := &model.Paper{ContestID: s.contestID(), Title: s.Contest.Title, Mode: s.Contest.Mode}
	if p.Mode == model.ExamModeSectioned {
		for _, sec := range s.Contest.Sections {
			p.Sections = append(p.Sections, model.Section{
				Name:      sec.Name,
				Duration:  model.SectionDuration{Hours: sec.Hours, Minutes: sec.Minutes},
				Questions: questions(sec.Questions),
			})
		}
		return p
	}
	p.Questions = questions(s.Contest.Questions)
	return p
}

// Config builds the contest's test configuration.
func (s *Script) Config() model.TestConfig {
	pc := s.Contest.Proctoring
	cfg := model.TestConfig{
		ContestID:        s.contestID(),
		DurationMinutes:  s.Contest.DurationMinutes,
		PassPercentage:   s.Contest.PassPercentage,
		ShuffleQuestions: s.Contest.ShuffleQuestions,
		Proctoring: model.ProctoringConfig{
			Fullscreen:        pc.Fullscreen,
			Face:              pc.Face,
			Noise:             pc.Noise,
			DeviceRestriction: pc.DeviceRestriction,
		},
	}
	if l := pc.Limits; l != nil {
		cfg.Proctoring.Limits = &model.WarningLimits{
			Fullscreen: l.Fullscreen,
			TabSwitch:  l.TabSwitch,
			Noise:      l.Noise,
			Face:       l.Face,
		}
	}
	return cfg
}

func (s *Script) contestID() string {
	if s.Name != "" {
		return "replay-" + s.Name
	}
	return "replay"
}

func questions(in []QuestionSpec) []model.Question {
	out := make([]model.Question, len(in))
	for i, q := range in {
		out[i] = model.Question{Text: q.Text, Options: q.Options, CorrectAnswer: q.Correct}
	}
	return out
}
