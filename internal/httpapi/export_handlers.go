package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/export"
)

type ExportHandler struct {
	Session SessionController
	Now     func() time.Time
}

func (h ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	items, ok := h.items(w, r)
	if !ok {
		return
	}
	h.attachment(w, "text/csv; charset=utf-8", export.Filename("csv", h.Now(), len(items)), export.CSV(items))
}

func (h ExportHandler) JSON(w http.ResponseWriter, r *http.Request) {
	items, ok := h.items(w, r)
	if !ok {
		return
	}
	b, err := export.JSON(items)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	h.attachment(w, "application/json", export.Filename("json", h.Now(), len(items)), b)
}

// items reads one consistent snapshot; there is nothing to export before the
// first result arrives.
func (h ExportHandler) items(w http.ResponseWriter, r *http.Request) ([]domain.Item, bool) {
	snap, err := h.Session.Snapshot(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return nil, false
	}
	if len(snap.Items) == 0 {
		WriteDomainError(w, r, fmt.Errorf("%w: no items to export", domain.ErrNotFound))
		return nil, false
	}
	return snap.Items, true
}

func (h ExportHandler) attachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
