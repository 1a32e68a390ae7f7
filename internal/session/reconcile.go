package session

import (
	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
)

// apply folds one executor event into the session. Events stamped with a
// different session, or arriving after the session reached a terminal status,
// are dropped. It reports whether the event changed anything.
func (c *Controller) apply(e events.Event) bool {
	if e.SessionID != c.st.id || !c.st.status.Live() {
		c.log.Debug("dropping executor event", "kind", e.Kind,
			"event_session", e.SessionID, "session_id", c.st.id, "status", c.st.status)
		return false
	}

	switch e.Kind {
	case events.KindLog:
		entry := e.Log
		if entry.Timestamp.IsZero() {
			entry.Timestamp = c.now().UTC()
		}
		entry.Level = domain.ParseLogLevel(string(entry.Level))
		c.agg.AppendLog(entry)
		c.notify.Publish(events.MakeEvent(c.st.id, "session.log", 1, entry))

	case events.KindProgress:
		label := e.Label
		if c.st.status == domain.StatusPaused {
			label = ""
		}
		c.agg.SetProgress(e.Percent, label, true)
		a := c.agg.Snapshot()
		c.metrics.SetProgress(a.Progress)
		c.notify.Publish(events.MakeEvent(c.st.id, "session.progress", 1, map[string]any{
			"percent": a.Progress,
			"label":   a.Label,
		}))

	case events.KindData:
		if len(e.Items) == 0 {
			return false
		}
		c.agg.AppendItems(e.Items)
		c.notify.Publish(events.MakeEvent(c.st.id, "session.data", 1, map[string]any{
			"added": len(e.Items),
			"total": c.agg.ItemCount(),
		}))

	case events.KindStats:
		c.agg.SetStats(e.Stats)
		c.notify.Publish(events.MakeEvent(c.st.id, "session.stats", 1, e.Stats))

	case events.KindStatus:
		return c.applyStatus(e.Status)

	case events.KindError:
		msg := e.Message
		if msg == "" {
			msg = "executor reported an error"
		}
		c.fail(msg)

	default:
		c.log.Warn("unknown executor event kind", "kind", e.Kind)
		return false
	}
	return true
}

// applyStatus handles status changes the executor initiated itself. They are
// applied locally only; nothing is sent back to the executor.
func (c *Controller) applyStatus(target domain.Status) bool {
	cur := c.st.status
	switch target {
	case domain.StatusCompleted:
		if cur == domain.StatusPaused {
			// Take effect on resume so the pause stays honoured.
			c.st.pendingComplete = true
			return true
		}
		c.appendLog(domain.LevelSuccess, "Collection completed")
		c.finish(domain.StatusCompleted)
	case domain.StatusStopped:
		c.appendLog(domain.LevelWarning, "Session stopped by executor")
		c.finish(domain.StatusStopped)
	case domain.StatusPaused:
		if cur != domain.StatusRunning {
			return false
		}
		c.enterPaused()
		c.appendLog(domain.LevelWarning, "Session paused by executor")
	case domain.StatusRunning:
		if cur != domain.StatusPaused {
			return false
		}
		c.leavePaused()
		c.appendLog(domain.LevelInfo, "Session resumed by executor")
	case domain.StatusErrored:
		c.fail("executor reported an error")
	default:
		c.log.Warn("ignoring executor status", "status", target, "current", cur)
		return false
	}
	return true
}
