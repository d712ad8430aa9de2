package service

import (
	"errors"
	"fmt"
)

// Admission and lifecycle failure classes. Handlers map these to HTTP status
// codes; everything else surfaces as an internal error.
var (
	// ErrNotFound is returned when a record does not exist or the caller
	// may not see it.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when the caller's monthly document
	// quota is exhausted.
	ErrQuotaExceeded = errors.New("document quota exceeded")

	// ErrTemplateNotFound is returned when the requested template does not
	// exist or is no longer active.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateForbidden is returned when the caller's tier is below the
	// template's tier requirement.
	ErrTemplateForbidden = errors.New("template requires a higher subscription tier")

	// ErrStatusConflict is returned when a status transition or mutation
	// is not permitted from the record's current state.
	ErrStatusConflict = errors.New("operation conflicts with document status")

	// ErrValidation wraps structural validation failures on requests.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateEmail is returned when registering an already-used email.
	ErrDuplicateEmail = errors.New("email already registered")
)

// validationError returns a validation failure with a caller-actionable reason.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
