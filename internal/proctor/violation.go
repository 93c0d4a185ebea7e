// Package proctor is the exam-session integrity engine: it keeps the time
// budget, turns raw client signals into debounced violations, counts them
// against limits and ends the session exactly once.
//
// A Controller is driven by a single goroutine. Guards never touch session
// state; they emit Violations and Commands which the controller queues and
// applies in emission order.
package proctor

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Category is one of the four fixed warning classes.
type Category string

const (
	CategoryFullscreen Category = "fullscreen"
	CategoryTabSwitch  Category = "tab_switch"
	CategoryNoise      Category = "noise"
	CategoryFace       Category = "face"
)

// Categories lists every category in ledger order.
var Categories = []Category{CategoryFullscreen, CategoryTabSwitch, CategoryNoise, CategoryFace}

// Violation is one detected integrity breach.
type Violation struct {
	Category Category
	Detail   string
	At       time.Time
}

// Counts holds one counter per category.
type Counts struct {
	Fullscreen int `json:"fullscreen"`
	TabSwitch  int `json:"tab_switch"`
	Noise      int `json:"noise"`
	Face       int `json:"face"`
}

// Get returns the counter for c.
func (c Counts) Get(cat Category) int {
	switch cat {
	case CategoryFullscreen:
		return c.Fullscreen
	case CategoryTabSwitch:
		return c.TabSwitch
	case CategoryNoise:
		return c.Noise
	case CategoryFace:
		return c.Face
	}
	return 0
}

func (c *Counts) set(cat Category, v int) {
	switch cat {
	case CategoryFullscreen:
		c.Fullscreen = v
	case CategoryTabSwitch:
		c.TabSwitch = v
	case CategoryNoise:
		c.Noise = v
	case CategoryFace:
		c.Face = v
	}
}

func limitFor(l model.WarningLimits, cat Category) int {
	switch cat {
	case CategoryFullscreen:
		return l.Fullscreen
	case CategoryTabSwitch:
		return l.TabSwitch
	case CategoryNoise:
		return l.Noise
	case CategoryFace:
		return l.Face
	}
	return 0
}
