package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"medcanna/m/domain"
	"medcanna/m/internal/storage"
)

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePatient, domain.RoleClient) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "multipart form with kind and file is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", "file is required")
		return
	}
	defer file.Close()

	uid, _ := userIDFromContext(r)
	doc, err := h.documents.Submit(r.Context(), uid, domain.DocumentKind(r.FormValue("kind")), header.Filename, file)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (h *Handler) listMyDocuments(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r)
	docs, err := h.documents.ListForUser(r.Context(), uid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	status := domain.DocumentStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.DocumentPending
	}
	if !status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_input", "status must be pending, approved or rejected")
		return
	}
	docs, err := h.documents.ListByStatus(r.Context(), status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

type reviewRequest struct {
	Note string `json:"note"`
}

func (h *Handler) approveDocument(w http.ResponseWriter, r *http.Request) {
	h.reviewDocument(w, r, true)
}

func (h *Handler) rejectDocument(w http.ResponseWriter, r *http.Request) {
	h.reviewDocument(w, r, false)
}

func (h *Handler) reviewDocument(w http.ResponseWriter, r *http.Request, approve bool) {
	var req reviewRequest
	// The note is optional, so an empty body is fine.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	reviewer, _ := userIDFromContext(r)
	id := chi.URLParam(r, "id")

	var (
		doc *domain.Document
		err error
	)
	if approve {
		doc, err = h.documents.Approve(r.Context(), id, reviewer, req.Note)
	} else {
		doc, err = h.documents.Reject(r.Context(), id, reviewer, req.Note)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rc, err := h.files.Open(r.Context(), key)
	if errors.Is(err, storage.ErrInvalidKey) || errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	defer rc.Close()
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = io.Copy(w, rc)
}
