package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/etl"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
)

// maxUploadBytes bounds one uploaded file.
const maxUploadBytes = 32 << 20

const (
	fileTypeExcel = "excel"
	fileTypeImage = "image"
)

var uploadImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

type uploadHandler struct {
	pipeline *etl.Pipeline
	faqDir   string
	imgDir   string
	logger   log.Logger
}

type uploadResponse struct {
	Filename     string      `json:"filename"`
	FileType     string      `json:"file_type"`
	IngestResult *etl.Report `json:"ingest_result"`
}

// run handles POST /api/upload: save the file into the matching data
// directory, then ingest it.
func (h *uploadHandler) run(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "uploaded file too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_upload", "multipart field 'file' is required", h.logger)
		return
	}
	defer file.Close()

	// Strip any client-supplied directory components.
	filename := filepath.Base(header.Filename)
	if filename == "." || filename == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid_filename", "invalid file name", h.logger)
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var fileType, destDir string
	switch {
	case ext == ".xlsx":
		fileType = fileTypeExcel
		destDir = h.faqDir
	case uploadImageExtensions[ext]:
		fileType = fileTypeImage
		destDir = h.imgDir
	default:
		writeError(w, http.StatusBadRequest, "unsupported_file_type",
			fmt.Sprintf("unsupported file type: %s (allowed: .xlsx, .png, .jpg, .jpeg)", ext), h.logger)
		return
	}

	destPath, err := h.saveFile(file, destDir, filename)
	if err != nil {
		h.logger.Error("saving uploaded file", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "save_failed", "failed to save uploaded file", h.logger)
		return
	}

	var report *etl.Report
	if fileType == fileTypeExcel {
		report, err = h.pipeline.IngestWorkbook(r.Context(), destPath)
	} else {
		report, err = h.pipeline.IngestImages(r.Context())
	}
	switch {
	case errors.Is(err, etl.ErrIngestRunning):
		writeError(w, http.StatusConflict, "ingest_running", "an ingestion batch is already running", h.logger)
	case err != nil:
		h.logger.Error("ingesting uploaded file", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "ingestion failed", h.logger)
	default:
		writeJSON(w, http.StatusOK, uploadResponse{
			Filename:     filename,
			FileType:     fileType,
			IngestResult: report,
		}, h.logger)
	}
}

// saveFile writes the upload into destDir, creating it if needed.
func (h *uploadHandler) saveFile(src io.Reader, destDir, filename string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, filename)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", fmt.Errorf("writing %s: %w", destPath, err)
	}
	return destPath, nil
}
