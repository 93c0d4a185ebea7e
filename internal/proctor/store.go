package proctor

import (
	"context"
	"errors"
)

// SessionStore is the namespaced key/value persistence a session writes to.
// Keys of one session are never shared with another.
type SessionStore interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Remove(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
}

var (
	ErrNotActive        = errors.New("session is not active")
	ErrMinimumAnswers   = errors.New("not enough questions answered to finish")
	ErrSubmitting       = errors.New("submission already in progress")
	ErrSubmitFailed     = errors.New("submission failed, please try again")
	ErrTimeExpired      = errors.New("time is up, answers can no longer change")
	ErrInvalidQuestion  = errors.New("question does not exist")
	ErrInvalidOption    = errors.New("option does not belong to question")
	ErrSectionLocked    = errors.New("section is locked")
	ErrLastSection      = errors.New("already on the last section")
	ErrNotSectioned     = errors.New("paper has no sections")
	ErrModalOpen        = errors.New("close the current warning first")
	ErrDeviceRestricted = errors.New("device not allowed for this contest")
	ErrEmptyPaper       = errors.New("paper has no questions")
)
