// Package store holds the key/value backends for per-session proctoring state.
// Every backend groups keys by namespace so one student's attempt at one
// contest never collides with another.
package store

import "errors"

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store: closed")
