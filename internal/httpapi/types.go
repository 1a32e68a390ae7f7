package httpapi

import (
	"time"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/session"
)

// SessionView is the session snapshot without the result buffer, which is
// served separately by /session/items.
type SessionView struct {
	SessionID       string               `json:"sessionId,omitempty"`
	Status          domain.Status        `json:"status"`
	SelectedUnits   []domain.UnitID      `json:"selectedUnits"`
	Config          domain.SessionConfig `json:"config"`
	ProgressPercent float64              `json:"progress"`
	CurrentTask     string               `json:"currentTask"`
	Stats           domain.Stats         `json:"stats"`
	ItemCount       int                  `json:"itemCount"`
	Log             []domain.LogEntry    `json:"log"`
	ErrorMessage    string               `json:"errorMessage,omitempty"`
	StartedAt       *time.Time           `json:"startedAt,omitempty"`
	LoadedFrom      string               `json:"loadedFrom,omitempty"`
	Connected       bool                 `json:"connected"`
}

func viewOf(s session.Snapshot) SessionView {
	v := SessionView{
		SessionID:       s.SessionID,
		Status:          s.Status,
		SelectedUnits:   s.SelectedUnits,
		Config:          s.Config,
		ProgressPercent: s.ProgressPercent,
		CurrentTask:     s.CurrentTask,
		Stats:           s.Stats,
		ItemCount:       len(s.Items),
		Log:             s.Log,
		ErrorMessage:    s.ErrorMessage,
		LoadedFrom:      s.LoadedFrom,
		Connected:       s.Connected,
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		v.StartedAt = &t
	}
	if v.SelectedUnits == nil {
		v.SelectedUnits = []domain.UnitID{}
	}
	if v.Log == nil {
		v.Log = []domain.LogEntry{}
	}
	return v
}
