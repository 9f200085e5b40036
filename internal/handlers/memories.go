package handlers

import (
	"net/http"
	"strconv"
)

const defaultMemoryLimit = 100

// ListMemories handles fetching memories, optionally filtered by agent.
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	var agentID int64
	if v := r.URL.Query().Get("agentId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			h.Error(w, http.StatusBadRequest, "invalid agentId")
			return
		}
		agentID = id
	}

	limit := defaultMemoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 500 {
		limit = 500
	}

	memories, err := h.store.ListMemories(r.Context(), agentID, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, memories)
}
