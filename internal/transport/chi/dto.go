package chi

import (
	"github.com/kailas-cloud/omniview/internal/usecase/maintainer"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeVersionConflict  ErrorCode = "version_conflict"
	ErrorCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// BatchResponse reports a processed batch.
type BatchResponse struct {
	BatchID    string         `json:"batch_id"`
	Records    int            `json:"records"`
	Classified map[string]int `json:"classified"`
	Skipped    map[string]int `json:"skipped"`
	Reads      int            `json:"reads"`
	Writes     int            `json:"writes"`
	Conflicts  int            `json:"conflicts"`
	DurationMS int64          `json:"duration_ms"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func reportToResponse(rep maintainer.Report) BatchResponse {
	classified := make(map[string]int, len(rep.Classified))
	for k, n := range rep.Classified {
		classified[string(k)] = n
	}
	skipped := rep.Skipped
	if skipped == nil {
		skipped = map[string]int{}
	}
	return BatchResponse{
		BatchID:    rep.BatchID,
		Records:    rep.Records,
		Classified: classified,
		Skipped:    skipped,
		Reads:      rep.Reads,
		Writes:     rep.Writes,
		Conflicts:  rep.Conflicts,
		DurationMS: rep.Duration.Milliseconds(),
	}
}
