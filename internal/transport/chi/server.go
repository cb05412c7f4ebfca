package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omniview/internal/domain"
	"github.com/kailas-cloud/omniview/internal/domain/change"
	healthuc "github.com/kailas-cloud/omniview/internal/usecase/health"
	"github.com/kailas-cloud/omniview/internal/usecase/maintainer"
	"github.com/kailas-cloud/omniview/internal/version"
)

// Source labels batches received over HTTP.
const Source = "http"

// maxBodyBytes bounds a batch request body.
const maxBodyBytes = 8 << 20

// BatchProcessor applies a batch of change records to the aggregate.
type BatchProcessor interface {
	Process(ctx context.Context, batch change.Batch) (maintainer.Report, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the batch ingestion API.
type Server struct {
	batches       BatchProcessor
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(batches BatchProcessor, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		batches: batches,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidBatch, http.StatusBadRequest, ErrorCodeBadRequest),
		sentinelHandler(domain.ErrVersionConflict, http.StatusConflict, ErrorCodeVersionConflict),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusInternalServerError, ErrorCodeStoreUnavailable),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/batches", s.ProcessBatch)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// ProcessBatch handles POST /v1/batches. The body is a change-stream event
// envelope. Any non-2xx answer means the caller should redeliver the batch.
func (s *Server) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	records, err := change.DecodeEvent(body)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	rep, err := s.batches.Process(r.Context(), change.Batch{
		ID:      r.Header.Get("X-Batch-ID"),
		Source:  Source,
		Records: records,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reportToResponse(rep))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Version: version.String(),
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var vc *domain.VersionConflictError
	if errors.As(err, &vc) {
		return fmt.Sprintf("%s: step %s", domain.ErrVersionConflict.Error(), vc.Step)
	}
	sentinels := []error{
		domain.ErrInvalidBatch,
		domain.ErrVersionConflict,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
