package proctor

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PresenceGuard classifies camera frames. A frame is OK when exactly one face
// is visible with open eyes and a frontal orientation. A bad streak that
// outlasts the debounce becomes a violation; a long one additionally asks
// the student to face the camera.
type PresenceGuard struct {
	enabled bool
	active  bool

	debounce   time.Duration
	escalation time.Duration

	bad       bool
	badSince  time.Time
	lastEmit  time.Time
	emitted   bool
	prompted  bool
	warnShown bool

	log zerolog.Logger
}

func NewPresenceGuard(enabled bool, debounce, escalation time.Duration, log zerolog.Logger) *PresenceGuard {
	return &PresenceGuard{
		enabled:    enabled,
		debounce:   debounce,
		escalation: escalation,
		log:        log.With().Str("guard", string(CategoryFace)).Logger(),
	}
}

func (g *PresenceGuard) Category() Category { return CategoryFace }
func (g *PresenceGuard) Active() bool { return g.active }
func (g *PresenceGuard) Stop() { g.active = false }

func (g *PresenceGuard) Start(_ time.Time, _ Emitter) {
	if g.enabled {
		g.active = true
	}
}

func (g *PresenceGuard) Handle(ev Event, out Emitter) {
	switch e := ev.(type) {
	case MediaUnavailable:
		if e.Device == DeviceCamera && g.active {
			g.log.Warn().Str("reason", e.Reason).Msg("Camera unavailable, presence guard disabled")
			g.active = false
		}
	case FaceObserved:
		if !g.active {
			return
		}
		detail, ok := classifyFrame(e)
		if ok {
			g.reset(e.At, out)
			return
		}
		if !g.bad {
			g.bad = true
			g.badSince = e.At
		}
		g.check(e.At, detail, out)
	case Tick:
		if g.active && g.bad {
			g.escalate(e.At, out)
		}
	}
}

func (g *PresenceGuard) check(now time.Time, detail string, out Emitter) {
	if now.Sub(g.badSince) >= g.debounce && (!g.emitted || now.Sub(g.lastEmit) >= g.debounce) {
		g.emitted = true
		g.lastEmit = now
		g.warnShown = true
		out.Violation(Violation{Category: CategoryFace, Detail: detail, At: now})
	}
	g.escalate(now, out)
}

func (g *PresenceGuard) escalate(now time.Time, out Emitter) {
	if g.prompted || now.Sub(g.badSince) < g.escalation {
		return
	}
	g.prompted = true
	out.Command(Command{Kind: CommandFacePrompt, At: now})
}

func (g *PresenceGuard) reset(now time.Time, out Emitter) {
	if !g.bad {
		return
	}
	shown := g.warnShown || g.prompted
	g.bad = false
	g.prompted = false
	g.warnShown = false
	if shown {
		out.Command(Command{Kind: CommandCancelFaceWarning, At: now})
	}
}

func classifyFrame(f FaceObserved) (string, bool) {
	switch {
	case f.Faces == 0:
		return "no_face", false
	case f.Faces > 1:
		return fmt.Sprintf("faces:%d", f.Faces), false
	case !f.EyesOpen:
		return "eyes_closed", false
	case !f.Oriented:
		return "looking_away", false
	}
	return "", true
}
