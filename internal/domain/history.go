package domain

import (
	"fmt"
	"time"
)

// HistoryEntry is the immutable record of one finalized session.
type HistoryEntry struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"sessionId"`
	FinishedAt    time.Time     `json:"finishedAt"`
	Status        Status        `json:"status"`
	SelectedUnits []UnitID      `json:"selectedUnits"`
	Totals        Stats         `json:"totals"`
	Duration      time.Duration `json:"durationNs"`
	DurationText  string        `json:"duration"`
	Items         []Item        `json:"items"`
}

// FormatDuration renders d the way the history list shows it, e.g. "5m 32s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
