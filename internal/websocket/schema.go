package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionFullscreenChange Action = "fullscreen_change"
	ActionFullscreenError  Action = "fullscreen_error"
	ActionKeyDown          Action = "key_down"
	ActionBlur             Action = "blur"
	ActionVisibility       Action = "visibility"
	ActionFocusPoll        Action = "focus_poll"
	ActionNoiseSample      Action = "noise_sample"
	ActionFaceFrame        Action = "face_frame"
	ActionMediaUnavailable Action = "media_unavailable"
	ActionInteraction      Action = "interaction"
	ActionSelectAnswer     Action = "select_answer"
	ActionToggleReview     Action = "toggle_review"
	ActionNavigate         Action = "navigate"
	ActionNextSection      Action = "next_section"
	ActionFinish           Action = "finish"
	ActionFinishConfirm    Action = "finish_confirm"
	ActionDismissModal     Action = "dismiss_modal"
	ActionBeforeUnload     Action = "before_unload"
	ActionPing             Action = "ping"
)

// Request is every client message. Only the fields of its action are read.
type Request struct {
	Action Action `json:"action"`

	// fullscreen_change
	Active bool `json:"active"`
	// fullscreen_error, media_unavailable
	Reason string `json:"reason"`

	// key_down
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`

	// visibility, focus_poll
	Hidden  bool `json:"hidden"`
	Focused bool `json:"focused"`

	// noise_sample: amplitude levels 0-255
	Samples []int `json:"samples"`

	// face_frame
	Faces    int  `json:"faces"`
	EyesOpen bool `json:"eyes_open"`
	Oriented bool `json:"oriented"`

	// media_unavailable
	Device string `json:"device"`

	// select_answer, toggle_review, navigate
	Section  int    `json:"section"`
	Question int    `json:"question"`
	Option   string `json:"option"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventPaper             Event = "paper"
	EventState             Event = "state"
	EventTimer             Event = "timer"
	EventModal             Event = "modal"
	EventRequestFullscreen Event = "request_fullscreen"
	EventStopMedia         Event = "stop_media"
	EventAlert             Event = "alert"
	EventFinished          Event = "finished"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// Message is the envelope of every server event.
type Message struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AlertResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
