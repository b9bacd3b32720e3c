package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks.
var (
	ErrNotFound = errors.New("not found")
)

// ValidationError represents a rejected write or malformed input. It carries
// every violation found, not just the first, so the caller can surface the
// full list to the user.
type ValidationError struct {
	Field      string   `json:"field"`
	Violations []string `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, strings.Join(e.Violations, "; "))
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, violations ...string) *ValidationError {
	return &ValidationError{Field: field, Violations: violations}
}

// NotFoundError reports a lookup that was contractually required to succeed,
// such as writing a classification to a variable that does not exist.
type NotFoundError struct {
	Kind string `json:"kind"` // "variable", "patient", "version"
	ID   string `json:"id"`
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.ID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// FormatError reports a loaded document that fails the
// {type: "object", properties: {...}} shape check. A single FormatError is
// not fatal to a batch load; the document is skipped with a warning.
type FormatError struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("document '%s' has invalid format: %s", e.Label, e.Reason)
}

// NewFormatError creates a new FormatError.
func NewFormatError(label, reason string) *FormatError {
	return &FormatError{Label: label, Reason: reason}
}

// NoValidSchemaError reports a batch load in which zero candidate documents
// passed validation. The lifecycle state is left unchanged when it occurs.
type NoValidSchemaError struct {
	Attempted int      `json:"attempted"`
	Reasons   []string `json:"reasons"`
}

// Error implements the error interface.
func (e *NoValidSchemaError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("no valid schema documents among %d candidates", e.Attempted)
	}
	return fmt.Sprintf("no valid schema documents among %d candidates: %s", e.Attempted, strings.Join(e.Reasons, "; "))
}
