package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"kitascrape-engine/internal/config"
	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/regions"
)

var validate = validator.New()

type SessionHandler struct {
	Session SessionController
	CfgVal  *atomic.Value // config.Config
}

type startRequest struct {
	Units []domain.UnitID `json:"units"`
	// Config falls back to the configured session defaults when omitted.
	Config *domain.SessionConfig `json:"config"`
}

func (h SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Session.Snapshot(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(snap))
}

func (h SessionHandler) Items(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Session.Snapshot(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": snap.Items, "count": len(snap.Items)})
}

func (h SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	cfg := h.defaults()
	if req.Config != nil {
		cfg = *req.Config
	}
	if err := validate.Struct(cfg); err != nil {
		WriteDomainError(w, r, fmt.Errorf("%w: config: %v", domain.ErrValidation, err))
		return
	}
	for _, u := range req.Units {
		if u != "" && !regions.Known(u) {
			WriteDomainError(w, r, fmt.Errorf("%w: unknown region %q", domain.ErrValidation, u))
			return
		}
	}
	h.command(w, r, http.StatusAccepted, func(ctx context.Context) error {
		return h.Session.Start(ctx, req.Units, cfg)
	})
}

func (h SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, http.StatusOK, h.Session.Pause)
}

func (h SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, http.StatusOK, h.Session.Resume)
}

func (h SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, http.StatusOK, h.Session.Stop)
}

// command runs fn and answers with the resulting session view.
func (h SessionHandler) command(w http.ResponseWriter, r *http.Request, okStatus int, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	snap, err := h.Session.Snapshot(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, okStatus, viewOf(snap))
}

func (h SessionHandler) defaults() domain.SessionConfig {
	if h.CfgVal == nil {
		return config.Default().Session
	}
	if cfg, ok := h.CfgVal.Load().(config.Config); ok {
		return cfg.Session
	}
	return config.Default().Session
}

// Regions serves the selectable units.
func Regions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, regions.All())
}
