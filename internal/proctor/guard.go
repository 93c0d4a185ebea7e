package proctor

import "time"

// CommandKind names a side effect a guard asks the controller to perform.
type CommandKind string

const (
	CommandRequestFullscreen CommandKind = "request_fullscreen"
	CommandFacePrompt        CommandKind = "face_prompt"
	CommandCancelFaceWarning CommandKind = "cancel_face_warning"
)

// Command is a non-violation instruction emitted by a guard.
type Command struct {
	Kind CommandKind
	At   time.Time
}

// Emitter receives guard output. Emissions are queued, never applied inline.
type Emitter interface {
	Violation(v Violation)
	Command(c Command)
}

// Guard turns raw client signals for one category into violations.
type Guard interface {
	Category() Category
	// Start activates the guard. Disabled guards stay inert.
	Start(now time.Time, out Emitter)
	// Handle sees every dispatched event and ignores the ones it does not own.
	Handle(ev Event, out Emitter)
	Stop()
	Active() bool
}

// debouncer lets at most one emission through per window.
type debouncer struct {
	window time.Duration
	last   time.Time
	fired  bool
}

func (d *debouncer) allow(now time.Time) bool {
	if d.fired && now.Sub(d.last) < d.window {
		return false
	}
	d.fired = true
	d.last = now
	return true
}
