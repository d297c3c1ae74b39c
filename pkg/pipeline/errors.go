package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a request rejected before or during prompt
	// assembly.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for missing projects and for projects owned by
	// another user.
	ErrNotFound = errors.New("project not found")
	// ErrNotReady is returned when exporting a project that has no content.
	ErrNotReady = errors.New("project has no generated content")
	// ErrExportDisabled is returned when no object store is configured.
	ErrExportDisabled = errors.New("export storage not configured")
)

// InvalidInputError names the request field that failed validation.
type InvalidInputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is required"
	}
	return fmt.Sprintf("invalid input: %s %s", e.Field, reason)
}

func (e *InvalidInputError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// StorageError wraps a persistence failure. It is always surfaced.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
