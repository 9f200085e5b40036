package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loomworks/loom/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store store.DataStore
	redis *store.RedisStore
}

// NewHandler creates a new Handler with the given stores. redis may be
// nil when rate limiting is disabled.
func NewHandler(st store.DataStore, redis *store.RedisStore) *Handler {
	return &Handler{store: st, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// urlID parses the {id} URL parameter as a positive int64.
func urlID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
