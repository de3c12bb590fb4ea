package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/chat"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

// maxChatBodyBytes bounds the chat request body.
const maxChatBodyBytes = 64 << 10

type chatHandler struct {
	service *chat.Service
	logger  log.Logger
}

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// ask handles POST /api/chat.
func (h *chatHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	answer, err := h.service.Answer(r.Context(), req.Question, req.SessionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, answer, h.logger)
	case errors.Is(err, chat.ErrEmptyQuestion), errors.Is(err, chat.ErrEmptySession):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error(), h.logger)
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
	default:
		h.logger.Error("answering question", "error", err)
		// The orchestrator returns a user-facing fallback text alongside
		// the error; surface it rather than a bare 500.
		if answer != nil {
			writeJSON(w, http.StatusOK, answer, h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "chat_failed", "failed to generate answer", h.logger)
	}
}
