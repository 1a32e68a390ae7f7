package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation blocks start() when no units are selected.
	ErrValidation = errors.New("validation failed")
	// ErrConnectivity means the executor cannot be reached.
	ErrConnectivity = errors.New("executor unreachable")
	// ErrSessionActive rejects commands that need the session to be idle or finished.
	ErrSessionActive = errors.New("a session is already running")
	ErrNotFound      = errors.New("not found")
)

// ExecutorError is a failure reported by the executor itself.
type ExecutorError struct {
	Message string
}

func (e *ExecutorError) Error() string { return "executor error: " + e.Message }

// PersistenceError wraps a history read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
