package proctor

import (
	"strings"
	"time"
)

// FocusGuard flags tab switches: window blur, hidden pages, focus-stealing
// key combinations and a failed focus poll with no native signal behind it.
// It only runs while fullscreen enforcement is on.
type FocusGuard struct {
	enabled    bool
	active     bool
	debounce   debouncer
	poll       time.Duration
	lastSignal time.Time
}

func NewFocusGuard(enabled bool, window, poll time.Duration) *FocusGuard {
	return &FocusGuard{
		enabled:  enabled,
		debounce: debouncer{window: window},
		poll:     poll,
	}
}

func (g *FocusGuard) Category() Category { return CategoryTabSwitch }
func (g *FocusGuard) Active() bool { return g.active }
func (g *FocusGuard) Stop() { g.active = false }

func (g *FocusGuard) Start(now time.Time, _ Emitter) {
	if !g.enabled {
		return
	}
	g.active = true
	g.lastSignal = now
}

func (g *FocusGuard) Handle(ev Event, out Emitter) {
	if !g.active {
		return
	}

	switch e := ev.(type) {
	case WindowBlurred:
		g.flag(e.At, "blur", out)
	case VisibilityChanged:
		if e.Hidden {
			g.flag(e.At, "hidden", out)
		}
	case KeyPressed:
		if combo, ok := switchCombo(e); ok {
			g.flag(e.At, "key:"+combo, out)
		}
	case FocusPolled:
		if !e.Focused && e.At.Sub(g.lastSignal) >= g.poll {
			g.flag(e.At, "poll", out)
		}
	}
}

func (g *FocusGuard) flag(now time.Time, detail string, out Emitter) {
	g.lastSignal = now
	if !g.debounce.allow(now) {
		return
	}
	out.Violation(Violation{Category: CategoryTabSwitch, Detail: detail, At: now})
}

// switchCombo recognises reload, close, devtools, app-switch and OS keys.
func switchCombo(k KeyPressed) (string, bool) {
	key := strings.ToLower(k.Key)

	switch {
	case key == "f5" || key == "f12":
		return key, true
	case key == "meta" || key == "os":
		return "meta", true
	case (k.Ctrl || k.Meta) && (key == "r" || key == "w"):
		return "ctrl+" + key, true
	case k.Ctrl && key == "tab":
		return "ctrl+tab", true
	case k.Alt && (key == "tab" || key == "f4"):
		return "alt+" + key, true
	case k.Ctrl && k.Shift && (key == "i" || key == "j" || key == "c"):
		return "ctrl+shift+" + key, true
	}
	return "", false
}
