package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

type sessionHandler struct {
	store  session.Store
	logger log.Logger
}

// create handles POST /api/session.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Create(r.Context())
	if err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": s.ID.String()}, h.logger)
}

// list handles GET /api/sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries}, h.logger)
}

// history handles GET /api/sessions/{id}/history.
func (h *sessionHandler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	messages, err := h.store.History(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	case err != nil:
		h.logger.Error("loading history", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "failed to load history", h.logger)
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id.String(),
		"messages":   messages,
	}, h.logger)
}

// remove handles DELETE /api/sessions/{id}.
func (h *sessionHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
	case err != nil:
		h.logger.Error("deleting session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session", h.logger)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// pathID parses the {id} path segment, writing a 400 on failure.
func (h *sessionHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid session ID", h.logger)
		return uuid.Nil, false
	}
	return id, true
}
