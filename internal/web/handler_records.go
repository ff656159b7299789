package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/vbonduro/tcmtongue/internal/photostore"
	"github.com/vbonduro/tcmtongue/internal/service"
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords(r.Context())
	if err != nil {
		http.Error(w, "failed to list records", http.StatusInternalServerError)
		s.logger.Error("list records failed", "error", err)
		return
	}

	if err := s.renderPage(w, http.StatusOK,
		map[string]any{"Records": records, "ActiveNav": "records"},
		"base.html", "pages/records.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.service.GetRecord(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to get record", http.StatusInternalServerError)
		s.logger.Error("get record failed", "record_id", id, "error", err)
		return
	}
	if rec == nil {
		http.NotFound(w, r)
		return
	}

	if err := s.renderPage(w, http.StatusOK,
		map[string]any{"Record": rec, "ActiveNav": "records"},
		"base.html", "pages/record_detail.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleGetRecordPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	reader, mimeType, err := s.service.OpenRecordPhoto(r.Context(), id)
	if errors.Is(err, service.ErrRecordNotFound) || errors.Is(err, photostore.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to open photo", http.StatusInternalServerError)
		s.logger.Error("open photo failed", "record_id", id, "error", err)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "record_id", id, "error", err)
	}
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.service.DeleteRecord(r.Context(), id)
	if errors.Is(err, service.ErrRecordNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to delete record", http.StatusInternalServerError)
		s.logger.Error("delete record failed", "record_id", id, "error", err)
		return
	}

	w.Header().Set("HX-Redirect", "/records")
	w.WriteHeader(http.StatusOK)
}
