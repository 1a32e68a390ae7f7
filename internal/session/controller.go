// Package session owns the lifecycle of the one scrape session: it accepts
// user commands, applies executor events, keeps the aggregated results and
// hands finished sessions to the history store.
//
// All state lives in a single goroutine (Run). Commands and executor events
// are applied one at a time in arrival order, so a user stop racing an
// executor completion resolves to exactly one terminal status.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor"
)

// ErrClosed is returned once Run has exited.
var ErrClosed = errors.New("session controller stopped")

type Options struct {
	Logger   *slog.Logger
	Metrics  Metrics
	Notifier Notifier
	Now      func() time.Time
	NewID    func() string
}

type Controller struct {
	exec    executor.Executor
	history HistoryRecorder
	log     *slog.Logger
	metrics Metrics
	notify  Notifier
	now     func() time.Time
	newID   func() string

	cmds chan command
	done chan struct{}

	// Owned by Run.
	st  state
	agg Aggregator
}

// state is the per-session bookkeeping next to the aggregator.
type state struct {
	id        string
	status    domain.Status
	units     []domain.UnitID
	cfg       domain.SessionConfig
	startedAt time.Time
	pausedAt  time.Time
	pausedFor time.Duration
	errMsg    string
	loaded    string
	// pendingComplete records an executor completion that arrived while paused.
	pendingComplete bool
}

type command struct {
	ctx   context.Context
	name  string
	fn    func(ctx context.Context) error
	reply chan error
}

func New(exec executor.Executor, history HistoryRecorder, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{
		exec:    exec,
		history: history,
		log:     opts.Logger,
		metrics: opts.Metrics,
		notify:  opts.Notifier,
		now:     opts.Now,
		newID:   opts.NewID,
		cmds:    make(chan command),
		done:    make(chan struct{}),
		st:      state{status: domain.StatusIdle},
	}
}

// Run serves commands and executor events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	evs := c.exec.Events()
	c.log.Info("session controller started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("session controller stopping", "status", c.st.status)
			return nil
		case cmd := <-c.cmds:
			err := cmd.fn(cmd.ctx)
			c.metrics.ObserveCommand(cmd.name, err)
			cmd.reply <- err
		case e := <-evs:
			applied := c.apply(e)
			c.metrics.ObserveEvent(string(e.Kind), applied)
		}
	}
}

// do runs fn on the controller goroutine and waits for its result. If ctx ends
// after the command was queued, the command still runs.
func (c *Controller) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cmd := command{ctx: ctx, name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins a new session over units. It fails with domain.ErrValidation
// for an empty selection, domain.ErrSessionActive while another session is
// live and domain.ErrConnectivity when the executor is unreachable.
func (c *Controller) Start(ctx context.Context, units []domain.UnitID, cfg domain.SessionConfig) error {
	units = domain.NormalizeUnits(units)
	if len(units) == 0 {
		err := fmt.Errorf("%w: select at least one region", domain.ErrValidation)
		c.metrics.ObserveCommand("start", err)
		return err
	}
	return c.do(ctx, "start", func(ctx context.Context) error {
		if c.st.status.Live() {
			return domain.ErrSessionActive
		}
		if !c.exec.Connected() {
			return fmt.Errorf("%w: not connected", domain.ErrConnectivity)
		}
		if err := c.st.status.ValidateTransition(domain.StatusRunning); err != nil {
			return err
		}

		id := c.newID()
		if err := c.exec.Start(ctx, id, units, cfg); err != nil {
			c.log.Warn("executor rejected start", "session_id", id, "err", err)
			return err
		}

		c.agg.Reset()
		c.st = state{
			id:        id,
			status:    domain.StatusRunning,
			units:     units,
			cfg:       cfg,
			startedAt: c.now(),
		}
		c.metrics.SetProgress(0)
		c.appendLog(domain.LevelInfo, fmt.Sprintf("Session started for %s", joinUnits(units)))
		c.log.Info("session started", "session_id", id, "units", len(units),
			"delay_ms", cfg.DelayMs, "max_retries", cfg.MaxRetries)
		c.publishStatus()
		return nil
	})
}

// Pause is a no-op unless the session is running.
func (c *Controller) Pause(ctx context.Context) error {
	return c.do(ctx, "pause", func(ctx context.Context) error {
		if c.st.status != domain.StatusRunning {
			return nil
		}
		if err := c.exec.Pause(ctx); err != nil {
			return err
		}
		c.enterPaused()
		c.appendLog(domain.LevelWarning, "Session paused")
		return nil
	})
}

// Resume is a no-op unless the session is paused.
func (c *Controller) Resume(ctx context.Context) error {
	return c.do(ctx, "resume", func(ctx context.Context) error {
		if c.st.status != domain.StatusPaused {
			return nil
		}
		if err := c.exec.Resume(ctx); err != nil {
			return err
		}
		c.leavePaused()
		c.appendLog(domain.LevelInfo, "Session resumed")
		if c.st.pendingComplete {
			c.finish(domain.StatusCompleted)
		}
		return nil
	})
}

// Stop ends a live session and records it in the history. It is a no-op in
// any other status. An unreachable executor still stops the session locally
// and the connectivity error is returned; an executor that refuses the stop
// leaves the session as it was.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, "stop", func(ctx context.Context) error {
		if !c.st.status.Live() {
			return nil
		}
		if err := c.exec.Stop(ctx); err != nil {
			if !errors.Is(err, domain.ErrConnectivity) {
				return err
			}
			c.log.Warn("executor unreachable, stopping locally", "session_id", c.st.id, "err", err)
			c.appendLog(domain.LevelWarning, "Executor unreachable, session stopped locally")
			c.finish(domain.StatusStopped)
			return err
		}
		c.appendLog(domain.LevelWarning, "Session stopped by user")
		c.finish(domain.StatusStopped)
		return nil
	})
}

// Status reports the current status. It is the query the cooperative
// executor polls at unit boundaries.
func (c *Controller) Status(ctx context.Context) (domain.Status, error) {
	var st domain.Status
	err := c.do(ctx, "status", func(context.Context) error {
		st = c.st.status
		return nil
	})
	return st, err
}

// Snapshot returns a detached copy of the whole session view.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, "snapshot", func(context.Context) error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// LoadHistory replaces the displayed results with a stored entry. The
// session status is left alone.
func (c *Controller) LoadHistory(ctx context.Context, id string) error {
	return c.do(ctx, "load_history", func(context.Context) error {
		if c.st.status.Live() {
			return domain.ErrSessionActive
		}
		entry, ok := c.history.Get(id)
		if !ok {
			return fmt.Errorf("history entry %q: %w", id, domain.ErrNotFound)
		}
		c.agg.LoadView(entry.Items, entry.Totals)
		c.st.loaded = entry.ID
		c.appendLog(domain.LevelInfo, fmt.Sprintf("Loaded %d items from history", len(entry.Items)))
		c.notify.Publish(events.MakeEvent(c.st.id, "session.loaded", 1, map[string]any{
			"entryId": entry.ID,
			"items":   len(entry.Items),
		}))
		return nil
	})
}

func (c *Controller) snapshot() Snapshot {
	a := c.agg.Snapshot()
	units := append([]domain.UnitID{}, c.st.units...)
	return Snapshot{
		SessionID:       c.st.id,
		Status:          c.st.status,
		SelectedUnits:   units,
		Config:          c.st.cfg,
		ProgressPercent: a.Progress,
		CurrentTask:     a.Label,
		Stats:           a.Stats,
		Items:           a.Items,
		Log:             a.Log,
		ErrorMessage:    c.st.errMsg,
		StartedAt:       c.st.startedAt,
		LoadedFrom:      c.st.loaded,
		Connected:       c.exec.Connected(),
	}
}

func (c *Controller) enterPaused() {
	c.st.status = domain.StatusPaused
	c.st.pausedAt = c.now()
	c.agg.ClearLabel()
	c.publishStatus()
}

func (c *Controller) leavePaused() {
	c.st.status = domain.StatusRunning
	c.leavePausedClock()
	c.publishStatus()
}

func (c *Controller) appendLog(level domain.LogLevel, msg string) {
	e := domain.LogEntry{Timestamp: c.now().UTC(), Level: level, Message: msg}
	c.agg.AppendLog(e)
	c.notify.Publish(events.MakeEvent(c.st.id, "session.log", 1, e))
}

func (c *Controller) publishStatus() {
	c.notify.Publish(events.MakeEvent(c.st.id, "session.status", 1, map[string]any{
		"status": c.st.status,
		"error":  c.st.errMsg,
	}))
}

func joinUnits(units []domain.UnitID) string {
	s := make([]string, len(units))
	for i, u := range units {
		s[i] = string(u)
	}
	return strings.Join(s, ", ")
}
