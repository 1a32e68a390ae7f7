package httpapi

import (
	"net/http"
	"path/filepath"
	"sync/atomic"

	"kitascrape-engine/internal/config"
)

type ConfigHandler struct {
	CfgVal      *atomic.Value // stores config.Config
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}

const redacted = "<redacted>"

func (h ConfigHandler) current() config.Config {
	cfg, _ := h.CfgVal.Load().(config.Config)
	return cfg
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cur := h.current()
	if cur.App.ShutdownToken != "" {
		cur.App.ShutdownToken = redacted
	}
	WriteJSON(w, http.StatusOK, cur)
}

// Put replaces the user config file. Session defaults apply to the next
// start; listener and executor changes need a restart.
func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	var incoming config.Config
	if err := decodeJSON(r, &incoming); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	// The token never leaves the process, so a round-tripped GET keeps it.
	if incoming.App.ShutdownToken == redacted {
		incoming.App.ShutdownToken = h.current().App.ShutdownToken
	}

	normalized, vr := config.NormalizeAndValidate(incoming)
	if !vr.OK() {
		// Return structured errors so the UI can show them nicely
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}

	if err := config.SaveAtomic(h.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	saved, err := h.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", "saved but reload failed: "+err.Error())
		return
	}
	h.CfgVal.Store(saved)
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "warnings": vr.Warnings})
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, _ := filepath.Abs(h.UserCfgPath)
	WriteJSON(w, http.StatusOK, map[string]any{"path": abs})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := config.NormalizeAndValidate(h.current())
	WriteJSON(w, http.StatusOK, vr)
}
