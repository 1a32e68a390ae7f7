package httpapi

import (
	"context"
	"net/http"
)

type DBHandler struct {
	Flush func(ctx context.Context) error
}

// Checkpoint folds the sqlite WAL into the main database file. Local callers
// only.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if !localOnly(r) {
		WriteError(w, r, http.StatusForbidden, "forbidden", "local requests only")
		return
	}
	if err := h.Flush(r.Context()); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "checkpoint_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
