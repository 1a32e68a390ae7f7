// Package executor defines the contract between the session controller and
// whatever performs the collection work.
package executor

import (
	"context"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
)

// Executor is the command side plus the single ordered event source of a
// collection backend. Command methods return domain.ErrConnectivity (wrapped)
// when the backend cannot be reached and *domain.ExecutorError when it refuses.
type Executor interface {
	Start(ctx context.Context, sessionID string, units []domain.UnitID, cfg domain.SessionConfig) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error

	// Events is never closed while the executor is alive.
	Events() <-chan events.Event

	// Connected gates start(); in-process backends are always connected.
	Connected() bool
}

// StatusQuery reports the controller's current view of the session status.
// The cooperative simulator calls it at every unit boundary.
type StatusQuery func(ctx context.Context) (domain.Status, error)

// Mode selects an implementation.
type Mode string

const (
	ModeSimulator Mode = "simulator"
	ModeRemote    Mode = "remote"
)
