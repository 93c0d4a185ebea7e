package model

import "time"

// NotAttended is recorded for questions the student never answered.
const NotAttended = "not attended"

// Grade values.
const (
	GradePass = "Pass"
	GradeFail = "Fail"
)

// AnswerRecord is one graded question in a submission.
type AnswerRecord struct {
	Section       int    `json:"section"`
	Question      int    `json:"question"`
	Text          string `json:"text"`
	Selected      string `json:"selected"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// SectionAnswers groups answer records of one section in sectioned mode.
type SectionAnswers struct {
	SectionName string         `json:"sectionName"`
	Answers     []AnswerRecord `json:"answers"`
}

// SubmissionPayload is the single request sent to the scoring endpoint when a
// session finishes.
type SubmissionPayload struct {
	ContestID         string           `json:"contestId"`
	StudentID         int              `json:"studentId"`
	Mode              ExamMode         `json:"mode"`
	Reason            string           `json:"reason"`
	Answers           []AnswerRecord   `json:"answers,omitempty"`
	SectionAnswers    []SectionAnswers `json:"sectionAnswers,omitempty"`
	TotalQuestions    int              `json:"totalQuestions"`
	CorrectAnswers    int              `json:"correctAnswers"`
	Percentage        float64          `json:"percentage"`
	PassPercentage    float64          `json:"passPercentage"`
	Grade             string           `json:"grade"`
	FullscreenWarning int              `json:"FullscreenWarning"`
	TabSwitchWarning  int              `json:"TabSwitchWarning"`
	NoiseWarning      int              `json:"NoiseWarning"`
	FaceWarning       int              `json:"FaceWarning"`
	SubmittedAt       time.Time        `json:"submittedAt"`
}
