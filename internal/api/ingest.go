package api

import (
	"errors"
	"net/http"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/etl"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
)

type ingestHandler struct {
	pipeline *etl.Pipeline
	logger   log.Logger
}

// run handles POST /api/ingest.
func (h *ingestHandler) run(w http.ResponseWriter, r *http.Request) {
	report, err := h.pipeline.IngestAll(r.Context())
	switch {
	case errors.Is(err, etl.ErrIngestRunning):
		writeError(w, http.StatusConflict, "ingest_running", "an ingestion batch is already running", h.logger)
	case errors.Is(err, etl.ErrNoInput):
		writeError(w, http.StatusUnprocessableEntity, "no_input", err.Error(), h.logger)
	case err != nil:
		h.logger.Error("running ingestion", "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "ingestion failed", h.logger)
	default:
		writeJSON(w, http.StatusOK, report, h.logger)
	}
}
