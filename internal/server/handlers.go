package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/browser"
	"github.com/hyperjump/kbase/internal/ingest"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	multipartMemory  = 32 << 20
)

type urlIngestRequest struct {
	URL     string  `json:"url" validate:"required,url"`
	Cookies string  `json:"cookies,omitempty"`
	UserID  *string `json:"user_id,omitempty"`
}

type deleteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type listResponse struct {
	Documents []*models.Document `json:"documents"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
	Total     int64              `json:"total"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if limit := s.config.UploadMaxBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	mediaType, _, _ := strings.Cut(header.Header.Get("Content-Type"), ";")
	mediaType = strings.TrimSpace(mediaType)
	if !acceptUpload(filename, mediaType, s.documents) {
		s.respondError(w, http.StatusBadRequest, "unsupported file type: "+filename)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = ingest.MediaTypeOf(filename)
	}
	req := &ingest.Request{
		Content:     content,
		DisplayName: filename,
		MediaHint:   mediaType,
		UserID:      optionalString(r.FormValue("user_id")),
	}
	s.logger.Debug("upload request", zap.String("filename", filename), zap.Int("bytes", len(content)))

	doc, err := s.documents.Ingest(r.Context(), req)
	if err != nil {
		s.respondFailure(w, "upload failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

// acceptUpload admits PDFs and any other type an extraction strategy handles.
func acceptUpload(filename, mediaType string, docs DocumentService) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") || mediaType == "application/pdf" {
		return true
	}
	return docs.Supports(filename, mediaType)
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req urlIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	s.logger.Debug("url ingest request", zap.String("url", req.URL), zap.Bool("cookies", req.Cookies != ""))

	doc, err := s.documents.IngestURL(r.Context(), req.URL, req.Cookies, req.UserID)
	if err != nil {
		s.respondFailure(w, "url ingestion failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxListLimit)

	ctx := r.Context()
	docs, err := s.storage.ListDocuments(ctx, offset, limit)
	if err != nil {
		s.respondFailure(w, "list documents failed", err)
		return
	}
	total, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.respondFailure(w, "count documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, listResponse{Documents: docs, Offset: offset, Limit: limit, Total: total})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	doc, err := s.storage.GetDocument(ctx, id)
	if err != nil {
		s.respondFailure(w, "get document failed", err)
		return
	}
	fragments, err := s.storage.GetFragments(ctx, id)
	if err != nil {
		s.respondFailure(w, "get fragments failed", err)
		return
	}
	if fragments == nil {
		fragments = []*models.Fragment{}
	}
	s.respondJSON(w, http.StatusOK, models.DocumentDetail{Document: doc, Fragments: fragments})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.documents.Delete(r.Context(), id); err != nil {
		s.respondFailure(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, deleteResponse{ID: id, Status: "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.searcher.Search(r.Context(), &query)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.respondError(w, http.StatusNotImplemented, "status not configured")
		return
	}
	status, err := s.status.Report(r.Context())
	if err != nil {
		s.respondFailure(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, ingest.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, browser.ErrNavigation):
		return http.StatusBadGateway
	case errors.Is(err, ingest.ErrNoRenderer):
		return http.StatusNotImplemented
	case errors.Is(err, search.ErrUnavailable), vectorstore.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondFailure logs err and writes it with the mapped status.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "url":
			parts = append(parts, field+" must be a valid URL")
		default:
			parts = append(parts, field+" failed "+fe.Tag()+" "+fe.Param())
		}
	}
	return strings.Join(parts, "; ")
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
