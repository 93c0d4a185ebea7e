package model

import (
	"time"
)

// ExamMode enumerates the two paper layouts.
type ExamMode string

const (
	ExamModeFlat      ExamMode = "flat"
	ExamModeSectioned ExamMode = "sectioned"
)

// Question is a single multiple-choice item including its answer key.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// SectionDuration mirrors the provider's {hours, minutes} shape.
type SectionDuration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// Seconds returns the duration in whole seconds.
func (d SectionDuration) Seconds() int {
	return d.Hours*3600 + d.Minutes*60
}

// Section is one timed block of a sectioned paper.
type Section struct {
	Name      string          `json:"sectionName"`
	Duration  SectionDuration `json:"duration"`
	Questions []Question      `json:"questions"`
}

// Paper is what the question provider returns for a contest. Flat papers use
// Questions; sectioned papers use Sections.
type Paper struct {
	ContestID string     `json:"contestId"`
	Title     string     `json:"title"`
	Mode      ExamMode   `json:"mode"`
	Questions []Question `json:"questions,omitempty"`
	Sections  []Section  `json:"sections,omitempty"`
}

// SectionCount reports how many answer groups the paper has. Flat papers count as one.
func (p *Paper) SectionCount() int {
	if p.Mode == ExamModeSectioned {
		return len(p.Sections)
	}
	return 1
}

// QuestionsIn returns the questions of section i (flat papers only have section 0).
func (p *Paper) QuestionsIn(i int) []Question {
	if p.Mode == ExamModeSectioned {
		if i < 0 || i >= len(p.Sections) {
			return nil
		}
		return p.Sections[i].Questions
	}
	if i != 0 {
		return nil
	}
	return p.Questions
}

// TotalQuestions counts questions across every section.
func (p *Paper) TotalQuestions() int {
	total := 0
	for i := 0; i < p.SectionCount(); i++ {
		total += len(p.QuestionsIn(i))
	}
	return total
}

// ClientQuestion is a question without its answer key, sent to students.
type ClientQuestion struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// ClientSection is a section without answer keys, in display order.
type ClientSection struct {
	Name            string           `json:"name"`
	DurationSeconds int              `json:"duration_seconds"`
	Questions       []ClientQuestion `json:"questions"`
}

// ClientPaper is the paper as the student sees it.
type ClientPaper struct {
	ContestID string          `json:"contest_id"`
	Title     string          `json:"title"`
	Mode      ExamMode        `json:"mode"`
	Sections  []ClientSection `json:"sections"`
}

// WarningLimits are per-category thresholds for the conjunctive breach check.
type WarningLimits struct {
	Fullscreen int `json:"fullscreen"`
	TabSwitch  int `json:"tab_switch"`
	Noise      int `json:"noise"`
	Face       int `json:"face"`
}

// ProctoringConfig holds the integrity features enabled for a contest.
type ProctoringConfig struct {
	Fullscreen        bool           `json:"fullscreen"`
	Face              bool           `json:"face"`
	Noise             bool           `json:"noise"`
	DeviceRestriction bool           `json:"device_restriction"`
	Limits            *WarningLimits `json:"limits,omitempty"`
}

// Disabled is the fail-open configuration used when a contest has no usable
// settings: every detector is off.
func (ProctoringConfig) Disabled() ProctoringConfig {
	return ProctoringConfig{}
}

// TestConfig is the per-contest configuration blob read at session start.
type TestConfig struct {
	ContestID        string           `json:"contest_id"`
	DurationMinutes  int              `json:"duration_minutes"`
	PassPercentage   float64          `json:"pass_percentage"`
	ShuffleQuestions bool             `json:"shuffle_questions"`
	Proctoring       ProctoringConfig `json:"proctoring"`
}

// Contest is the stored contest row.
type Contest struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Mode      ExamMode   `json:"mode"`
	Config    TestConfig `json:"config"`
	CreatedAt time.Time  `json:"created_at"`
}
