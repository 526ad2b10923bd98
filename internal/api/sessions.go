package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/export"
	"github.com/dunamismax/styleflow/internal/ingest"
	"github.com/dunamismax/styleflow/internal/workflow"
)

const (
	uploadFormField = "image"
	// multipart framing on top of the largest accepted image
	uploadOverheadBytes = 1 << 20
)

func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*workflow.Controller, bool) {
	ctrl, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return ctrl, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessions.Create()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+ctrl.SessionID())
	writeJSON(w, http.StatusCreated, newStateView(ctrl.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	state := ctrl.Snapshot()
	view := newStateView(state)
	if r.URL.Query().Get("inline") == "1" {
		view.inline(state)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxImageBytes+uploadOverheadBytes)
	file, err := uploadFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: kindInvalidRequest})
		return
	}

	state, err := ctrl.UploadImage(r.Context(), file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = fmt.Errorf("%w: %v", domain.ErrFileTooLarge, err)
		}
		s.metrics.uploadsRejected.WithLabelValues(string(domain.KindOf(err))).Inc()
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(state))
}

// uploadFromRequest accepts either a multipart form with an "image" field or
// a raw body whose Content-Type is the image type.
func uploadFromRequest(r *http.Request) (ingest.File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = r.Header.Get("X-Filename")
		}
		return ingest.File{
			Name:     name,
			MimeType: r.Header.Get("Content-Type"),
			Size:     r.ContentLength,
			Body:     r.Body,
		}, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return ingest.File{}, fmt.Errorf("read multipart body: %w", err)
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return ingest.File{}, fmt.Errorf("multipart field %q is missing", uploadFormField)
		}
		if err != nil {
			return ingest.File{}, fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() != uploadFormField {
			continue
		}
		return ingest.File{
			Name:     part.FileName(),
			MimeType: part.Header.Get("Content-Type"),
			Size:     -1,
			Body:     part,
		}, nil
	}
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	state := ctrl.Snapshot()
	if state.SourceImage == nil {
		s.writeError(w, r, domain.ErrNoImage)
		return
	}
	writeImage(w, *state.SourceImage)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	state, err := ctrl.RemoveImage(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(state))
}

type selectStyleRequest struct {
	StyleID string `json:"style_id"`
}

func (s *Server) handleSelectStyle(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	var req selectStyleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: kindInvalidRequest})
		return
	}

	state, err := ctrl.SelectStyle(r.Context(), strings.TrimSpace(req.StyleID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.stylesSelected.WithLabelValues(state.SelectedStyle.ID).Inc()
	writeJSON(w, http.StatusAccepted, newStateView(state))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	state := ctrl.Snapshot()
	if state.ResultImage == nil {
		s.writeError(w, r, domain.ErrNoResult)
		return
	}
	writeImage(w, *state.ResultImage)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	download, err := export.FromState(ctrl.Snapshot())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(download.Size(), 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, download.Reader())
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	state := ctrl.Snapshot()
	if state.SourceImage == nil || state.ResultImage == nil {
		s.writeError(w, r, domain.ErrNoResult)
		return
	}

	data, err := export.Compare(*state.SourceImage, *state.ResultImage, state.SelectedStyle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypePNG)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "object storage is not configured", Kind: kindUnavailable})
		return
	}
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	published, err := s.publisher.Publish(r.Context(), ctrl.Snapshot())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, published)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": []domain.TransformRecord{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer", Kind: kindInvalidRequest})
			return
		}
		limit = parsed
	}

	records, err := s.history.ListTransformRecords(r.Context(), ctrl.SessionID(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.TransformRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeImage(w http.ResponseWriter, img domain.ImageAsset) {
	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}
