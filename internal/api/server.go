package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/export"
	"github.com/dunamismax/styleflow/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type sessionStore interface {
	Create() (*workflow.Controller, error)
	Get(sessionID string) (*workflow.Controller, error)
	Delete(sessionID string) error
	// Touch keeps a session alive while a client streams its events.
	Touch(sessionID string) bool
}

type styleCatalog interface {
	List() []domain.StylePreset
	Find(id string) (domain.StylePreset, bool)
}

type historyReader interface {
	ListTransformRecords(ctx context.Context, sessionID string, limit int) ([]domain.TransformRecord, error)
}

type downloadPublisher interface {
	Publish(ctx context.Context, state domain.WorkflowState) (export.Published, error)
}

type Options struct {
	Logger   *log.Logger
	Sessions sessionStore
	Catalog  styleCatalog
	History  historyReader
	// Publisher is optional; without it the publish route answers 503.
	Publisher downloadPublisher
	// RateLimiter is optional and applies to mutating session routes.
	RateLimiter     RateLimiter
	RateLimitHeader string
	// Registry receives the HTTP metrics. A private registry is created
	// when nil.
	Registry *prometheus.Registry
	Tracer   trace.Tracer
}

type Server struct {
	logger                *log.Logger
	sessions              sessionStore
	catalog               styleCatalog
	history               historyReader
	publisher             downloadPublisher
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
	keepAlive             time.Duration
}

func NewServer(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("style catalog is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if strings.TrimSpace(opts.RateLimitHeader) == "" {
		opts.RateLimitHeader = "X-User-ID"
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/dunamismax/styleflow/internal/api")
	}

	s := &Server{
		logger:                opts.Logger,
		sessions:              opts.Sessions,
		catalog:               opts.Catalog,
		history:               opts.History,
		publisher:             opts.Publisher,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitHeader,
		metrics:               newMetrics(opts.Registry),
		tracer:                opts.Tracer,
		mux:                   http.NewServeMux(),
		keepAlive:             eventsKeepAlive,
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("GET /v1/styles", s.handleListStyles)
	s.mux.HandleFunc("GET /v1/styles/{id}", s.handleGetStyle)

	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("PUT /v1/sessions/{id}/image", s.handleUploadImage)
	s.mux.HandleFunc("GET /v1/sessions/{id}/image", s.handleGetImage)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/image", s.handleRemoveImage)
	s.mux.HandleFunc("POST /v1/sessions/{id}/style", s.handleSelectStyle)
	s.mux.HandleFunc("GET /v1/sessions/{id}/result", s.handleGetResult)
	s.mux.HandleFunc("GET /v1/sessions/{id}/download", s.handleDownload)
	s.mux.HandleFunc("GET /v1/sessions/{id}/compare", s.handleCompare)
	s.mux.HandleFunc("POST /v1/sessions/{id}/publish", s.handlePublish)
	s.mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	s.mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEvents)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListStyles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"styles": s.catalog.List()})
}

func (s *Server) handleGetStyle(w http.ResponseWriter, r *http.Request) {
	style, ok := s.catalog.Find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "style not found", Kind: domain.KindUnknownStyle})
		return
	}
	writeJSON(w, http.StatusOK, style)
}

const (
	kindInvalidRequest domain.ErrorKind = "invalid_request"
	kindRateLimited    domain.ErrorKind = "rate_limited"
	kindUnavailable    domain.ErrorKind = "unavailable"
)

type errorBody struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

// writeError answers with the status code matching err's kind. Internal
// errors are logged and their message is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Printf("request failed method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindSessionNotFound:
		return http.StatusNotFound
	case domain.KindNoImage, domain.KindNoResult, domain.KindTransformCancelled:
		return http.StatusConflict
	case domain.KindUnknownStyle:
		return http.StatusUnprocessableEntity
	case domain.KindClosed:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
