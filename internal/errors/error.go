// Package errors provides custom error types for inventory operations.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound is returned by lookups when no record has the requested id.
	ErrProductNotFound = errors.New("product not found")
	// ErrStorage wraps failures of the underlying database engine.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidQuery reports an unknown column in a projection, filter or sort order.
	ErrInvalidQuery = errors.New("invalid query")
)

// ValidationError names the field that failed a rule and why. Nothing is written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Storage wraps err so that errors.Is(err, ErrStorage) holds while keeping the engine error reachable.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
