package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// CreateCollaborationRequest represents the collaboration creation request.
type CreateCollaborationRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ListCollaborations handles fetching all collaborations.
func (h *Handler) ListCollaborations(w http.ResponseWriter, r *http.Request) {
	collabs, err := h.store.ListCollaborations(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, collabs)
}

// CreateCollaboration handles collaboration creation.
func (h *Handler) CreateCollaboration(w http.ResponseWriter, r *http.Request) {
	var req CreateCollaborationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if len(req.Title) > 200 {
		h.Error(w, http.StatusUnprocessableEntity, "title too long (max 200 characters)")
		return
	}

	collab, err := h.store.CreateCollaboration(r.Context(), req.Title, req.Description, req.Metadata)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create collaboration")
		return
	}
	h.JSON(w, http.StatusCreated, collab)
}

// ListParticipants handles fetching a collaboration's participants.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid collaboration ID")
		return
	}

	collab, err := h.store.GetCollaboration(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if collab == nil {
		h.Error(w, http.StatusNotFound, "collaboration not found")
		return
	}

	participants, err := h.store.ListParticipants(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, participants)
}

// ListCollaborationMessages handles fetching a collaboration's messages,
// ordered by timestamp ascending.
func (h *Handler) ListCollaborationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid collaboration ID")
		return
	}

	collab, err := h.store.GetCollaboration(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if collab == nil {
		h.Error(w, http.StatusNotFound, "collaboration not found")
		return
	}

	messages, err := h.store.ListCollaborationMessages(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, messages)
}
