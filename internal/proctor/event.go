package proctor

import "time"

// Event is anything the controller's dispatcher consumes. Every event carries
// the server time at which it was received.
type Event interface {
	when() time.Time
}

// Device names a media input the client may fail to acquire.
type Device string

const (
	DeviceCamera     Device = "camera"
	DeviceMicrophone Device = "microphone"
)

// Tick is the once-per-interval heartbeat.
type Tick struct{ At time.Time }

// FullscreenChanged reports the document entering or leaving fullscreen.
type FullscreenChanged struct {
	Active bool
	At     time.Time
}

// FullscreenRejected reports that a fullscreen request failed on the client.
type FullscreenRejected struct {
	Reason string
	At     time.Time
}

// KeyPressed is a keydown observed by the client.
type KeyPressed struct {
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
	At    time.Time
}

// WindowBlurred reports the window losing focus.
type WindowBlurred struct{ At time.Time }

// VisibilityChanged reports page visibility transitions.
type VisibilityChanged struct {
	Hidden bool
	At     time.Time
}

// FocusPolled is the client's periodic document-focus probe.
type FocusPolled struct {
	Focused bool
	At      time.Time
}

// NoiseSampled carries one batch of microphone amplitude levels (0-255).
type NoiseSampled struct {
	Samples []uint8
	At      time.Time
}

// FaceObserved is the result of classifying one camera frame.
type FaceObserved struct {
	Faces    int
	EyesOpen bool
	Oriented bool
	At       time.Time
}

// MediaUnavailable reports that a camera or microphone could not be acquired.
type MediaUnavailable struct {
	Device Device
	Reason string
	At     time.Time
}

// UserInteracted is a click or tap anywhere on the page.
type UserInteracted struct{ At time.Time }

// AnswerSelected records an option choice.
type AnswerSelected struct {
	Section  int
	Question int
	Option   string
	At       time.Time
}

// ReviewToggled flips the review mark on a question.
type ReviewToggled struct {
	Section  int
	Question int
	At       time.Time
}

// Navigated moves the current question.
type Navigated struct {
	Section  int
	Question int
	At       time.Time
}

// SectionAdvanced moves to the next section, locking the current one.
type SectionAdvanced struct{ At time.Time }

// FinishRequested is the student pressing "Finish".
type FinishRequested struct{ At time.Time }

// FinishConfirmed is the student confirming the finish dialog.
type FinishConfirmed struct{ At time.Time }

// ModalDismissed closes the blocking modal.
type ModalDismissed struct{ At time.Time }

// BeforeUnload is the browser's unload prompt firing.
type BeforeUnload struct{ At time.Time }

func (e Tick) when() time.Time { return e.At }
func (e FullscreenChanged) when() time.Time { return e.At }
func (e FullscreenRejected) when() time.Time { return e.At }
func (e KeyPressed) when() time.Time { return e.At }
func (e WindowBlurred) when() time.Time { return e.At }
func (e VisibilityChanged) when() time.Time { return e.At }
func (e FocusPolled) when() time.Time { return e.At }
func (e NoiseSampled) when() time.Time { return e.At }
func (e FaceObserved) when() time.Time { return e.At }
func (e MediaUnavailable) when() time.Time { return e.At }
func (e UserInteracted) when() time.Time { return e.At }
func (e AnswerSelected) when() time.Time { return e.At }
func (e ReviewToggled) when() time.Time { return e.At }
func (e Navigated) when() time.Time { return e.At }
func (e SectionAdvanced) when() time.Time { return e.At }
func (e FinishRequested) when() time.Time { return e.At }
func (e FinishConfirmed) when() time.Time { return e.At }
func (e ModalDismissed) when() time.Time { return e.At }
func (e BeforeUnload) when() time.Time { return e.At }
