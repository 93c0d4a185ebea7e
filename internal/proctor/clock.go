package proctor

import "time"

// Clock supplies "now". Sessions take it as a dependency so tests can drive
// time by hand.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
