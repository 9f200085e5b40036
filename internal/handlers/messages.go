package handlers

import (
	"net/http"
	"strconv"
)

const defaultMessageLimit = 100

// ListMessages handles fetching recent messages across all collaborations.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 500 {
		limit = 500
	}

	messages, err := h.store.ListMessages(r.Context(), limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, messages)
}
