package proctor

import (
	"context"
	"time"
)

// ViolationEntry is one counted violation as seen by the audit journal.
type ViolationEntry struct {
	ContestID string    `json:"contest_id"`
	StudentID int       `json:"student_id"`
	Category  Category  `json:"category"`
	Detail    string    `json:"detail"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

// AnswerEntry is one answer selection.
type AnswerEntry struct {
	ContestID string    `json:"contest_id"`
	StudentID int       `json:"student_id"`
	Section   int       `json:"section"`
	Question  int       `json:"question"`
	Answer    string    `json:"answer"`
	At        time.Time `json:"at"`
}

// OrderEntry records the display order generated for a student.
type OrderEntry struct {
	ContestID string        `json:"contest_id"`
	StudentID int           `json:"student_id"`
	Order     QuestionOrder `json:"order"`
}

// Journal receives an append-only trail of session activity for durable
// storage and live monitoring. Journal failures never affect the session.
type Journal interface {
	Violation(ctx context.Context, e ViolationEntry) error
	Answer(ctx context.Context, e AnswerEntry) error
	QuestionOrder(ctx context.Context, e OrderEntry) error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Violation(context.Context, ViolationEntry) error { return nil }
func (NopJournal) Answer(context.Context, AnswerEntry) error { return nil }
func (NopJournal) QuestionOrder(context.Context, OrderEntry) error { return nil }
