package proctor

import (
	"time"

	"github.com/rs/zerolog"
)

// FullscreenGuard flags leaving fullscreen and pre-emptive Escape presses.
// The first detection inside the debounce window wins; the native exit that
// usually follows an Escape is collapsed into it.
type FullscreenGuard struct {
	enabled    bool
	active     bool
	fullscreen bool
	pending    bool
	debounce   debouncer
	log        zerolog.Logger
}

func NewFullscreenGuard(enabled bool, window time.Duration, log zerolog.Logger) *FullscreenGuard {
	return &FullscreenGuard{
		enabled:  enabled,
		debounce: debouncer{window: window},
		log:      log.With().Str("guard", string(CategoryFullscreen)).Logger(),
	}
}

func (g *FullscreenGuard) Category() Category { return CategoryFullscreen }
func (g *FullscreenGuard) Active() bool { return g.active }
func (g *FullscreenGuard) Stop() { g.active = false }

// Fullscreen reports the last known client state.
func (g *FullscreenGuard) Fullscreen() bool { return g.fullscreen }

func (g *FullscreenGuard) Start(now time.Time, out Emitter) {
	if !g.enabled {
		return
	}
	g.active = true
	g.request(now, out)
}

func (g *FullscreenGuard) Handle(ev Event, out Emitter) {
	if !g.active {
		return
	}

	switch e := ev.(type) {
	case FullscreenChanged:
		if e.Active {
			g.fullscreen = true
			g.pending = false
			return
		}
		was := g.fullscreen
		g.fullscreen = false
		if was {
			g.flag(e.At, "exit", out)
		}
		g.request(e.At, out)

	case KeyPressed:
		if e.Key == "Escape" && g.fullscreen {
			g.flag(e.At, "escape", out)
			g.request(e.At, out)
		}

	case FullscreenRejected:
		g.log.Warn().Str("reason", e.Reason).Msg("Fullscreen request rejected by client")
		g.pending = true

	case UserInteracted:
		if g.pending && !g.fullscreen {
			g.request(e.At, out)
		}
	}
}

func (g *FullscreenGuard) flag(now time.Time, detail string, out Emitter) {
	if !g.debounce.allow(now) {
		return
	}
	out.Violation(Violation{Category: CategoryFullscreen, Detail: detail, At: now})
}

func (g *FullscreenGuard) request(now time.Time, out Emitter) {
	g.pending = true
	out.Command(Command{Kind: CommandRequestFullscreen, At: now})
}
