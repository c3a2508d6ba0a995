package memory

import (
	"errors"
	"fmt"
)

// ErrDuplicateConsolidation is returned by the storage layer when a
// consolidation commit collides with an existing link for one of its source
// memories. Concurrent workers swallow it; a memory is consolidated at most
// once.
var ErrDuplicateConsolidation = errors.New("memory already consolidated")

// ValidationError reports bad caller input. Field names the offending input
// so agents can self-correct. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidation builds a ValidationError for a named field.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory not found: %s", e.ID)
}

// NewNotFound builds a NotFoundError for an id.
func NewNotFound(id string) error {
	return &NotFoundError{ID: id}
}

// StorageError wraps a database failure. Surfaced to the caller verbatim and
// not retried at this layer; the pool reconnects on its own.
type StorageError struct {
	Detail string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s", e.Detail)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorage wraps err with context for the storage taxonomy.
func NewStorage(detail string, err error) error {
	if err != nil {
		detail = fmt.Sprintf("%s: %v", detail, err)
	}
	return &StorageError{Detail: detail, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
