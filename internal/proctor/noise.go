package proctor

import (
	"time"

	"github.com/rs/zerolog"
)

// NoiseGuard keeps a rolling average of microphone amplitude and flags it
// crossing the upper threshold. After a violation it stays disarmed until the
// average falls below the lower threshold.
type NoiseGuard struct {
	enabled bool
	active  bool

	upper float64
	lower float64
	ring  []float64
	next  int
	count int
	armed bool

	debounce debouncer
	popups   int
	log      zerolog.Logger
}

type NoiseOptions struct {
	Upper    float64
	Lower    float64
	Window   int
	Debounce time.Duration
}

func NewNoiseGuard(enabled bool, opts NoiseOptions, log zerolog.Logger) *NoiseGuard {
	if opts.Window < 1 {
		opts.Window = 1
	}
	return &NoiseGuard{
		enabled:  enabled,
		upper:    opts.Upper,
		lower:    opts.Lower,
		ring:     make([]float64, opts.Window),
		armed:    true,
		debounce: debouncer{window: opts.Debounce},
		log:      log.With().Str("guard", string(CategoryNoise)).Logger(),
	}
}

func (g *NoiseGuard) Category() Category { return CategoryNoise }
func (g *NoiseGuard) Active() bool { return g.active }
func (g *NoiseGuard) Stop() { g.active = false }

// Popups counts how many noise warnings were raised this session.
func (g *NoiseGuard) Popups() int { return g.popups }

// Level is the current rolling average.
func (g *NoiseGuard) Level() float64 {
	if g.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < g.count; i++ {
		sum += g.ring[i]
	}
	return sum / float64(g.count)
}

func (g *NoiseGuard) Start(_ time.Time, _ Emitter) {
	if g.enabled {
		g.active = true
	}
}

func (g *NoiseGuard) Handle(ev Event, out Emitter) {
	switch e := ev.(type) {
	case MediaUnavailable:
		if e.Device == DeviceMicrophone && g.active {
			g.log.Warn().Str("reason", e.Reason).Msg("Microphone unavailable, noise guard disabled")
			g.active = false
		}
	case NoiseSampled:
		if !g.active || len(e.Samples) == 0 {
			return
		}
		g.push(mean(e.Samples))

		level := g.Level()
		if level < g.lower {
			g.armed = true
			return
		}
		if level > g.upper && g.armed && g.debounce.allow(e.At) {
			g.armed = false
			g.popups++
			out.Violation(Violation{Category: CategoryNoise, Detail: "loud", At: e.At})
		}
	}
}

func (g *NoiseGuard) push(v float64) {
	g.ring[g.next] = v
	g.next = (g.next + 1) % len(g.ring)
	if g.count < len(g.ring) {
		g.count++
	}
}

func mean(samples []uint8) float64 {
	var sum int
	for _, s := range samples {
		sum += int(s)
	}
	return float64(sum) / float64(len(samples))
}
