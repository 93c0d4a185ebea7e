package proctor

import "github.com/stemsi/exstem-proctor/internal/model"

// NoticeKind identifies an outbound message to the client.
type NoticeKind string

const (
	NoticePaper             NoticeKind = "paper"
	NoticeState             NoticeKind = "state"
	NoticeTimer             NoticeKind = "timer"
	NoticeModal             NoticeKind = "modal"
	NoticeRequestFullscreen NoticeKind = "request_fullscreen"
	NoticeStopMedia         NoticeKind = "stop_media"
	NoticeAlert             NoticeKind = "alert"
	NoticeFinished          NoticeKind = "finished"
)

// ModalKind names the blocking dialog on screen. At most one is shown.
type ModalKind string

const (
	ModalNone               ModalKind = ""
	ModalReturnToFullscreen ModalKind = "return_to_fullscreen"
	ModalNoiseWarning       ModalKind = "noise_warning"
	ModalFaceWarning        ModalKind = "face_warning"
	ModalFacePrompt         ModalKind = "face_prompt"
	ModalFinishConfirm      ModalKind = "finish_confirm"
)

type Modal struct {
	Kind  ModalKind `json:"kind"`
	Count int       `json:"count,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

type TimerView struct {
	Remaining        int   `json:"remaining"`
	SectionIndex     int   `json:"section_index"`
	SectionRemaining []int `json:"section_remaining,omitempty"`
}

type Position struct {
	Section  int `json:"section"`
	Question int `json:"question"`
}

// StateView is the full client-visible session state.
type StateView struct {
	Phase    Phase               `json:"phase"`
	Current  Position            `json:"current"`
	Answers  AnswerSet           `json:"answers"`
	Review   ReviewMarks         `json:"review"`
	Warnings Counts              `json:"warnings"`
	Limits   model.WarningLimits `json:"limits"`
	Timer    TimerView           `json:"timer"`
	Modal    Modal               `json:"modal"`
	Guards   map[Category]bool   `json:"guards"`
	// NoisePopups counts noise warnings raised by this connection's guard.
	NoisePopups int `json:"noise_popups"`
}

type FinishedView struct {
	Reason     Reason  `json:"reason"`
	Grade      string  `json:"grade"`
	Percentage float64 `json:"percentage"`
}

// Notice is one outbound message. Only the field matching Kind is set.
type Notice struct {
	Kind     NoticeKind
	Paper    *model.ClientPaper
	State    *StateView
	Timer    *TimerView
	Modal    *Modal
	Alert    string
	Finished *FinishedView
}

// Notifier delivers notices to the connected client. It must not block.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
