package db

import (
	"errors"

	"github.com/kailas-cloud/omniview/internal/domain"
)

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrVersionConflict is domain.ErrVersionConflict so callers can match either.
	ErrVersionConflict = domain.ErrVersionConflict
)

// Op constants name the backend call for error context.
const (
	OpPing       = "PING"
	OpGetItem    = "GetItem"
	OpUpdateItem = "UpdateItem"
	OpDescribe   = "DescribeTable"
	OpJSONGet    = "JSON.GET"
	OpEval       = "EVAL"
	OpXGroup     = "XGROUP"
	OpXReadGroup = "XREADGROUP"
	OpXAck       = "XACK"
	OpDecode     = "decode"
	OpValidate   = "validate"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
