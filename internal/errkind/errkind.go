// Package errkind defines the error taxonomy shared by the storage and
// gateway layers: validation, not-found, forbidden, and conflict, plus
// the Postgres SQLSTATE checks that turn constraint violations into
// domain errors.
package errkind

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrDuplicate  = errors.New("duplicate")
)

// Coded wraps a kind with a machine-readable code for the API envelope.
type Coded struct {
	Kind    error
	Code    string
	Message string
}

func (e *Coded) Error() string {
	return e.Message
}

func (e *Coded) Unwrap() error {
	return e.Kind
}

// Validation returns a validation error with the given reason.
func Validation(format string, args ...interface{}) error {
	return &Coded{
		Kind:    ErrValidation,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound returns a not-found error. Ownership failures on message and
// attachment lookups go through here too, so a foreign id is
// indistinguishable from a missing one.
func NotFound(what string) error {
	return &Coded{
		Kind:    ErrNotFound,
		Code:    "NOT_FOUND",
		Message: what + " not found",
	}
}

// Forbidden returns a forbidden error.
func Forbidden(message string) error {
	return &Coded{
		Kind:    ErrForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// Duplicate returns a conflict error carrying a distinct code so
// callers can branch without string matching.
func Duplicate(code, message string) error {
	return &Coded{
		Kind:    ErrDuplicate,
		Code:    code,
		Message: message,
	}
}

// Postgres SQLSTATE classes this system branches on.
const (
	sqlstateUniqueViolation = "23505"
	sqlstateUndefinedTable  = "42P01"
)

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. The response and attachment-link inserts rely on this to
// resolve races the application cannot see.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == sqlstateUniqueViolation
}

// IsUndefinedTable reports whether err means a referenced relation does
// not exist. The archive overlay uses this to detect a not-yet-migrated
// schema and substitute its fallback query.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == sqlstateUndefinedTable
}
