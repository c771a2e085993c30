package pomodoro

import (
	"errors"
	"fmt"
)

var (
	ErrNoActivePlan      = errors.New("pomodoro: no plan covers the current time")
	ErrInvalidTransition = errors.New("pomodoro: invalid state transition")
	ErrReauthRequired    = errors.New("pomodoro: identity session expired")
	ErrInvalidDuration   = errors.New("pomodoro: duration out of range")
	ErrEntryCancelled    = errors.New("pomodoro: manual entry cancelled")
	ErrOrphanedSession   = errors.New("pomodoro: in-progress log entry without a session anchor")

	errPlaceholderMissing = errors.New("pomodoro: placeholder log entry not found")
	errAlreadyRecorded    = errors.New("pomodoro: session already recorded")
)

// Bounds of a recorded session in minutes, inclusive.
const (
	MinMinutes = 1
	MaxMinutes = 1000
)

// ValidateMinutes reports ErrInvalidDuration for a minute count outside [MinMinutes, MaxMinutes].
func ValidateMinutes(m int) error {
	if m < MinMinutes || m > MaxMinutes {
		return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, m)
	}
	return nil
}
