package session

import (
	"time"

	"kitascrape-engine/internal/domain"
)

// Snapshot is a consistent, detached view of the controller state. Nothing in
// it aliases controller memory.
type Snapshot struct {
	SessionID       string               `json:"sessionId,omitempty"`
	Status          domain.Status        `json:"status"`
	SelectedUnits   []domain.UnitID      `json:"selectedUnits"`
	Config          domain.SessionConfig `json:"config"`
	ProgressPercent float64              `json:"progress"`
	CurrentTask     string               `json:"currentTask"`
	Stats           domain.Stats         `json:"stats"`
	Items           []domain.Item        `json:"items"`
	Log             []domain.LogEntry    `json:"log"`
	ErrorMessage    string               `json:"errorMessage,omitempty"`
	StartedAt       time.Time            `json:"startedAt,omitempty"`
	// LoadedFrom names the history entry currently shown, if any.
	LoadedFrom string `json:"loadedFrom,omitempty"`
	Connected  bool   `json:"connected"`
}
