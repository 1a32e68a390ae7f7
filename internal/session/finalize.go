package session

import (
	"time"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
)

// finish moves the live session into a terminal status. Stopped and
// completed sessions are written to the history exactly once; an errored
// session keeps its buffers on screen and is not recorded.
func (c *Controller) finish(target domain.Status) {
	if err := c.st.status.ValidateTransition(target); err != nil {
		c.log.Warn("rejected terminal transition", "session_id", c.st.id, "err", err)
		return
	}
	c.leavePausedClock()
	if target == domain.StatusCompleted {
		c.agg.ForceProgress(100)
		c.metrics.SetProgress(100)
	}
	c.st.status = target
	c.st.pendingComplete = false
	c.agg.ClearLabel()

	c.log.Info("session finished", "session_id", c.st.id, "status", target,
		"items", c.agg.ItemCount(), "duration", c.activeDuration())
	c.publishStatus()

	if target.Finalizes() {
		c.record()
	}
}

func (c *Controller) fail(msg string) {
	c.st.errMsg = msg
	c.appendLog(domain.LevelError, msg)
	c.finish(domain.StatusErrored)
}

func (c *Controller) record() {
	a := c.agg.Snapshot()
	d := c.activeDuration()
	entry := domain.HistoryEntry{
		ID:            c.newID(),
		SessionID:     c.st.id,
		FinishedAt:    c.now().UTC(),
		Status:        c.st.status,
		SelectedUnits: append([]domain.UnitID(nil), c.st.units...),
		Totals:        a.Stats,
		Duration:      d,
		DurationText:  domain.FormatDuration(d),
		Items:         a.Items,
	}
	c.history.Add(entry)
	c.metrics.ObserveFinalize(entry.Status)
	c.notify.Publish(events.MakeEvent(c.st.id, "history.added", 1, map[string]any{
		"id":     entry.ID,
		"status": entry.Status,
		"items":  len(entry.Items),
	}))
}

// activeDuration is wall time since start minus time spent paused.
func (c *Controller) activeDuration() time.Duration {
	if c.st.startedAt.IsZero() {
		return 0
	}
	d := c.now().Sub(c.st.startedAt) - c.st.pausedFor
	if !c.st.pausedAt.IsZero() {
		d -= c.now().Sub(c.st.pausedAt)
	}
	if d < 0 {
		return 0
	}
	return d
}

func (c *Controller) leavePausedClock() {
	if c.st.pausedAt.IsZero() {
		return
	}
	c.st.pausedFor += c.now().Sub(c.st.pausedAt)
	c.st.pausedAt = time.Time{}
}
