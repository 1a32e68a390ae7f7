package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
)

type HistoryHandler struct {
	History HistoryStore
	Session SessionController
	Hub     *events.Hub
}

// historySummary leaves out the items; a client loads an entry to see them.
type historySummary struct {
	domain.HistoryEntry
	Items     []domain.Item `json:"items,omitempty"`
	ItemCount int           `json:"itemCount"`
}

func (h HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.History.List()
	out := make([]historySummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, historySummary{HistoryEntry: e, ItemCount: len(e.Items)})
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.History.Delete(id); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	if h.Hub != nil {
		h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), "history.deleted", 1, map[string]any{"id": id}))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h HistoryHandler) Load(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.LoadHistory(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	snap, err := h.Session.Snapshot(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(snap))
}
