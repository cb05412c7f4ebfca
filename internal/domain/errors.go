package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBatch signals a batch payload that cannot be decoded.
	ErrInvalidBatch = errors.New("invalid batch")
	// ErrVersionConflict signals an optimistic locking conflict on the aggregate.
	ErrVersionConflict = errors.New("aggregate version conflict")
	// ErrStoreUnavailable signals a failed read or write against the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// VersionConflictError wraps ErrVersionConflict with the step that gave up.
type VersionConflictError struct {
	Step     string
	Attempts int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: step %s gave up after %d attempts", ErrVersionConflict.Error(), e.Step, e.Attempts)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// NewVersionConflict creates a version conflict error for a maintainer step.
func NewVersionConflict(step string, attempts int) error {
	return &VersionConflictError{Step: step, Attempts: attempts}
}
