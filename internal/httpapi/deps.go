package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"kitascrape-engine/internal/config"
	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/session"
)

// SessionController is the command surface of the session dispatcher.
type SessionController interface {
	Start(ctx context.Context, units []domain.UnitID, cfg domain.SessionConfig) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
	LoadHistory(ctx context.Context, id string) error
}

type HistoryStore interface {
	List() []domain.HistoryEntry
	Delete(id string) error
}

type Deps struct {
	Session SessionController
	History HistoryStore

	Hub *events.Hub

	// ExecutorMode is reported by /health.
	ExecutorMode string
	Connected    func() bool
	// Reconnect is nil for executors that are always connected.
	Reconnect func()

	// Atomic stores
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Checkpoint flushes the sqlite WAL; nil for the file backend.
	Checkpoint func(ctx context.Context) error

	Metrics http.Handler

	ShutdownToken string
	Shutdown      func()

	Logger *slog.Logger
	Now    func() time.Time
}
