package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

const (
	keyLimitFullscreen     = "limits.fullscreen"
	keyLimitTabSwitch      = "limits.tab_switch"
	keyLimitNoise          = "limits.noise"
	keyLimitFace           = "limits.face"
	keyFullscreenDebounce  = "fullscreen.debounce"
	keyFocusDebounce       = "focus.debounce"
	keyFocusPollInterval   = "focus.poll_interval"
	keyNoiseDebounce       = "noise.debounce"
	keyNoiseUpper          = "noise.upper_threshold"
	keyNoiseLower          = "noise.lower_threshold"
	keyNoiseWindow         = "noise.window"
	keyPresenceDebounce    = "presence.debounce"
	keyPresenceEscalation  = "presence.escalation"
	keyTickInterval        = "session.tick_interval"
	keyMinimumAnswerRatio  = "session.minimum_answer_ratio"
	keyDeviceMinViewportPx = "device.min_viewport_px"
)

// ProctorDefaults are the server-wide tuning values applied to every session.
// Per-contest settings may still override the warning limits.
type ProctorDefaults struct {
	LimitFullscreen int
	LimitTabSwitch  int
	LimitNoise      int
	LimitFace       int

	FullscreenDebounce time.Duration
	FocusDebounce      time.Duration
	FocusPollInterval  time.Duration

	NoiseDebounce  time.Duration
	NoiseUpper     float64
	NoiseLower     float64
	NoiseWindow    int
	FaceDebounce   time.Duration
	FaceEscalation time.Duration

	TickInterval       time.Duration
	MinimumAnswerRatio float64
	MinViewportPx      int
}

// LoadProctorDefaults reads the optional YAML defaults file. A blank path or a
// missing file yields the built-in defaults.
func LoadProctorDefaults(path string) (*ProctorDefaults, error) {
	v := viper.New()
	setProctorDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read proctor defaults: %w", err)
		}
	}

	d := &ProctorDefaults{
		LimitFullscreen:    v.GetInt(keyLimitFullscreen),
		LimitTabSwitch:     v.GetInt(keyLimitTabSwitch),
		LimitNoise:         v.GetInt(keyLimitNoise),
		LimitFace:          v.GetInt(keyLimitFace),
		FullscreenDebounce: v.GetDuration(keyFullscreenDebounce),
		FocusDebounce:      v.GetDuration(keyFocusDebounce),
		FocusPollInterval:  v.GetDuration(keyFocusPollInterval),
		NoiseDebounce:      v.GetDuration(keyNoiseDebounce),
		NoiseUpper:         v.GetFloat64(keyNoiseUpper),
		NoiseLower:         v.GetFloat64(keyNoiseLower),
		NoiseWindow:        v.GetInt(keyNoiseWindow),
		FaceDebounce:       v.GetDuration(keyPresenceDebounce),
		FaceEscalation:     v.GetDuration(keyPresenceEscalation),
		TickInterval:       v.GetDuration(keyTickInterval),
		MinimumAnswerRatio: v.GetFloat64(keyMinimumAnswerRatio),
		MinViewportPx:      v.GetInt(keyDeviceMinViewportPx),
	}

	if err := d.validate(); err != nil {
		return nil, err
	}

	return d, nil
}

func setProctorDefaults(v *viper.Viper) {
	v.SetDefault(keyLimitFullscreen, 3)
	v.SetDefault(keyLimitTabSwitch, 3)
	v.SetDefault(keyLimitNoise, 3)
	v.SetDefault(keyLimitFace, 3)
	v.SetDefault(keyFullscreenDebounce, "1s")
	v.SetDefault(keyFocusDebounce, "500ms")
	v.SetDefault(keyFocusPollInterval, "1s")
	v.SetDefault(keyNoiseDebounce, "1s")
	v.SetDefault(keyNoiseUpper, 128)
	v.SetDefault(keyNoiseLower, 100)
	v.SetDefault(keyNoiseWindow, 8)
	v.SetDefault(keyPresenceDebounce, "1s")
	v.SetDefault(keyPresenceEscalation, "15s")
	v.SetDefault(keyTickInterval, "1s")
	v.SetDefault(keyMinimumAnswerRatio, 0.5)
	v.SetDefault(keyDeviceMinViewportPx, 1024)
}

func (d *ProctorDefaults) validate() error {
	if d.NoiseLower >= d.NoiseUpper {
		return fmt.Errorf("noise lower threshold %.0f must be below upper threshold %.0f", d.NoiseLower, d.NoiseUpper)
	}
	if d.NoiseWindow < 1 {
		return errors.New("noise window must hold at least one sample")
	}
	if d.TickInterval <= 0 {
		return errors.New("session tick interval must be positive")
	}
	if d.MinimumAnswerRatio < 0 || d.MinimumAnswerRatio > 1 {
		return fmt.Errorf("minimum answer ratio %.2f out of range", d.MinimumAnswerRatio)
	}
	return nil
}
