package storage

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler serves objects to holders of a signed link. Mount it on
// /files/* so the wildcard carries the key.
type Handler struct {
	store *LocalStore
}

func NewHandler(store *LocalStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if err := h.store.Verify(key, r.URL.Query().Get("token")); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	data, err := h.store.Get(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrInvalidKey):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}
