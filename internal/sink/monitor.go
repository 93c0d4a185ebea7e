// Package sink delivers what a session produces to the rest of the system:
// final results, the audit journal and live monitor events.
package sink

import (
	"time"
)

// Monitor event types published on a contest's monitor channel.
const (
	EventViolation = "violation"
	EventFinished  = "finished"
)

// MonitorEvent is the JSON published to admins watching a contest.
type MonitorEvent struct {
	Type       string    `json:"type"`
	StudentID  int       `json:"student_id"`
	Category   string    `json:"category,omitempty"`
	Count      int       `json:"count,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Grade      string    `json:"grade,omitempty"`
	Percentage float64   `json:"percentage,omitempty"`
	At         time.Time `json:"at"`
}
