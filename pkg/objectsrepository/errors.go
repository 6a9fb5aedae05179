package objectsrepository

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	// ErrNotFound indicates a read against a missing or structurally
	// invalid identifier.
	ErrNotFound = errors.New("entity not found")

	// ErrAccountNotFound indicates the session has no account record.
	ErrAccountNotFound = errors.New("account not found")

	// ErrValidation indicates a malformed or incomplete submission unit.
	ErrValidation = errors.New("invalid submission")

	// ErrPermissionDenied indicates an ownership or password check failed.
	// The message is deliberately generic.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPasswordProtected indicates a compilation body was withheld.
	ErrPasswordProtected = errors.New("compilation is password protected")

	// ErrInvalidCollection indicates an unknown collection name.
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrStoreFailure indicates an underlying document-store operation
	// failed.
	ErrStoreFailure = errors.New("store operation failed")
)

// EntityError represents an error from an operation on a single entity.
type EntityError struct {
	Collection Collection
	ID         string
	Op         string
	Err        error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity operation %s failed for %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// SubmissionError represents a failed step of the submission pipeline.
// Steps already committed before the failure are not rolled back.
type SubmissionError struct {
	Step string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to add: step %s: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// StoreError represents a failure of the document-store layer itself.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed on backend %s: %v", e.Op, e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
