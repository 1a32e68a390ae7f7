package httpapi

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	Mode      string
	Connected func() bool
	Now       func() time.Time
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	connected := h.Connected == nil || h.Connected()
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": h.Now().Format(time.RFC3339),
		"executor": map[string]any{
			"mode":      h.Mode,
			"connected": connected,
		},
	})
}

// ReconnectHandler asks a remote executor adapter for a fresh connect cycle.
type ReconnectHandler struct {
	Reconnect func()
	Connected func() bool
}

func (h ReconnectHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.Reconnect == nil {
		WriteError(w, r, http.StatusConflict, "not_supported", "the in-process executor is always connected")
		return
	}
	h.Reconnect()
	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "connected": h.Connected != nil && h.Connected()})
}
