package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCaseID and related errors describe malformed engine inputs.
var (
	ErrInvalidCaseID     = errors.New("invalid case id")
	ErrInvalidDepartment = errors.New("invalid department")
	ErrInvalidTemplate   = errors.New("invalid template")
	ErrInvalidActor      = errors.New("invalid actor")
)

// ValidationError reports required template fields missing from a submission.
// Labels are human-readable and appear in template field order, so the message
// can be shown to the submitting user as-is.
type ValidationError struct {
	TemplateID    string
	MissingLabels []string
}

// Error renders the missing-field failure with user-facing labels.
func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.MissingLabels, ", ")
}

// TypeError reports a value that cannot satisfy its field's declared type.
// It signals an input-layer bug rather than a user-correctable failure.
type TypeError struct {
	FieldID string
	Label   string
	Value   any
}

// Error renders the malformed-value failure.
func (e *TypeError) Error() string {
	return fmt.Sprintf("field %q: value %v does not match declared type", e.FieldID, e.Value)
}

// AuthorizationError reports a hand-off or submission attempted by a
// department that does not currently hold the case.
type AuthorizationError struct {
	Acting  Department
	Current Department
}

// Error renders the wrong-department failure.
func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("department %q is not the current holder (case is with %q)", e.Acting, e.Current)
}
