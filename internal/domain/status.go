package domain

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a scrape session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "error"
)

// ErrInvalidTransition is wrapped by every rejected status change.
var ErrInvalidTransition = errors.New("invalid session status transition")

func (s Status) String() string { return string(s) }

// ParseStatus converts the wire form of a status. Unknown values return false.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusIdle, StatusRunning, StatusPaused, StatusStopped, StatusCompleted, StatusErrored:
		return Status(s), true
	case "errored", "failed":
		return StatusErrored, true
	default:
		return "", false
	}
}

// Terminal reports whether only start() can leave this status.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusErrored
}

// Live reports whether a session is in flight.
func (s Status) Live() bool {
	return s == StatusRunning || s == StatusPaused
}

// Finalizes reports whether entering this status produces a history entry.
func (s Status) Finalizes() bool {
	return s == StatusStopped || s == StatusCompleted
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s Status) ValidateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, s, target)
	}
	return nil
}

func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusIdle:
		return target == StatusRunning
	case StatusRunning:
		return target == StatusPaused || target == StatusStopped ||
			target == StatusCompleted || target == StatusErrored
	case StatusPaused:
		return target == StatusRunning || target == StatusStopped || target == StatusErrored
	case StatusStopped, StatusCompleted, StatusErrored:
		// Terminal: only a new start leaves.
		return target == StatusRunning
	default:
		return false
	}
}
