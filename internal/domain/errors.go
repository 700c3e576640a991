package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a receipt, image, operation or setting does not exist
var ErrNotFound = errors.New("not found")

// ErrOffline is returned when an operation needs connectivity
var ErrOffline = errors.New("network is offline")

// FieldError describes one invalid field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed receipt fields
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// StoreError wraps a local storage fault (open, transaction, encoding)
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return "storage error: " + e.Op
	}
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// SyncError wraps a failed remote gateway call
type SyncError struct {
	Kind      OperationKind
	ReceiptID string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync error: %s %s: %v", e.Kind, e.ReceiptID, e.Err)
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
