package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/legalworkflow/docprocessor/internal/core"
	"github.com/legalworkflow/docprocessor/internal/core/processing_engine"
)

type DocumentHandler struct {
	tracker   core.Tracker
	processor *processing_engine.DocumentProcessor
	index     core.IndexClient
}

func NewDocumentHandler(tracker core.Tracker, processor *processing_engine.DocumentProcessor, index core.IndexClient) *DocumentHandler {
	return &DocumentHandler{tracker: tracker, processor: processor, index: index}
}

// ProcessRequest is the JSON body of POST /api/process-document.
type ProcessRequest struct {
	FileContent  string `json:"file_content"`
	Filename     string `json:"filename"`
	ForceReindex bool   `json:"force_reindex"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("could not write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

// ProcessDocument runs the full pipeline for one base64-encoded upload.
func (h *DocumentHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" || req.FileContent == "" {
		writeError(w, http.StatusBadRequest, "filename and file_content are required")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_content is not valid base64")
		return
	}

	result, err := h.processor.Process(r.Context(), raw, req.Filename, req.ForceReindex)
	if err != nil {
		if errors.Is(err, core.ErrNoExtractableText) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		logrus.WithError(err).WithField("filename", req.Filename).Error("document processing failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health reports liveness.
func (h *DocumentHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "document-processor",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetDocuments lists all tracked documents.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.tracker.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// GetDocumentChunks returns the chunks recorded for one document.
func (h *DocumentHandler) GetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.tracker.GetDocumentByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	chunks, err := h.tracker.GetChunksByDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "chunks": chunks})
}

// GetStats returns tracker-wide aggregates.
func (h *DocumentHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DeleteDocument removes every index entry for the named file.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if decoded, err := url.PathUnescape(filename); err == nil {
		filename = decoded
	}
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	deleted, err := h.index.DeleteByFilename(r.Context(), filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"filename":       filename,
		"deleted_chunks": deleted,
	})
}
