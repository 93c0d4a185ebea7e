package websocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidDevice = errors.New("device must be camera or microphone")
	ErrNoSamples     = errors.New("noise sample batch is empty")
)

const maxSamples = 4096

// ToEvent converts a client request into a session event stamped with the
// server receive time. Ping has no session event and is rejected here.
func (r Request) ToEvent(at time.Time) (proctor.Event, error) {
	switch r.Action {
	case ActionFullscreenChange:
		return proctor.FullscreenChanged{Active: r.Active, At: at}, nil
	case ActionFullscreenError:
		return proctor.FullscreenRejected{Reason: r.Reason, At: at}, nil
	case ActionKeyDown:
		return proctor.KeyPressed{Key: r.Key, Ctrl: r.Ctrl, Alt: r.Alt, Shift: r.Shift, Meta: r.Meta, At: at}, nil
	case ActionBlur:
		return proctor.WindowBlurred{At: at}, nil
	case ActionVisibility:
		return proctor.VisibilityChanged{Hidden: r.Hidden, At: at}, nil
	case ActionFocusPoll:
		return proctor.FocusPolled{Focused: r.Focused, At: at}, nil
	case ActionNoiseSample:
		samples, err := clampSamples(r.Samples)
		if err != nil {
			return nil, err
		}
		return proctor.NoiseSampled{Samples: samples, At: at}, nil
	case ActionFaceFrame:
		if r.Faces < 0 {
			return nil, fmt.Errorf("faces must not be negative, got %d", r.Faces)
		}
		return proctor.FaceObserved{Faces: r.Faces, EyesOpen: r.EyesOpen, Oriented: r.Oriented, At: at}, nil
	case ActionMediaUnavailable:
		d := proctor.Device(r.Device)
		if d != proctor.DeviceCamera && d != proctor.DeviceMicrophone {
			return nil, ErrInvalidDevice
		}
		return proctor.MediaUnavailable{Device: d, Reason: r.Reason, At: at}, nil
	case ActionInteraction:
		return proctor.UserInteracted{At: at}, nil
	case ActionSelectAnswer:
		return proctor.AnswerSelected{Section: r.Section, Question: r.Question, Option: r.Option, At: at}, nil
	case ActionToggleReview:
		return proctor.ReviewToggled{Section: r.Section, Question: r.Question, At: at}, nil
	case ActionNavigate:
		return proctor.Navigated{Section: r.Section, Question: r.Question, At: at}, nil
	case ActionNextSection:
		return proctor.SectionAdvanced{At: at}, nil
	case ActionFinish:
		return proctor.FinishRequested{At: at}, nil
	case ActionFinishConfirm:
		return proctor.FinishConfirmed{At: at}, nil
	case ActionDismissModal:
		return proctor.ModalDismissed{At: at}, nil
	case ActionBeforeUnload:
		return proctor.BeforeUnload{At: at}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, r.Action)
}

func clampSamples(in []int) ([]uint8, error) {
	if len(in) == 0 {
		return nil, ErrNoSamples
	}
	if len(in) > maxSamples {
		in = in[:maxSamples]
	}
	out := make([]uint8, len(in))
	for i, v := range in {
		out[i] = uint8(min(max(v, 0), 255))
	}
	return out, nil
}

// FromNotice renders a session notice as a wire message.
func FromNotice(n proctor.Notice) (Message, error) {
	var data any
	switch n.Kind {
	case proctor.NoticePaper:
		data = n.Paper
	case proctor.NoticeState:
		data = n.State
	case proctor.NoticeTimer:
		data = n.Timer
	case proctor.NoticeModal:
		data = n.Modal
	case proctor.NoticeAlert:
		data = AlertResponse{Message: n.Alert}
	case proctor.NoticeFinished:
		data = n.Finished
	}
	return newMessage(Event(n.Kind), data)
}
