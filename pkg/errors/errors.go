package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios. Business-rule conditions
// (compliance breaches, infeasibility, solver timeouts) cross the public
// boundary as structured result payloads; these errors cover requests that
// are rejected outright.
var (
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrCompliance         = New("COMPLIANCE_VIOLATION", http.StatusUnprocessableEntity, "compliance violation")
	ErrInfeasible         = New("INFEASIBLE_SCHEDULE", http.StatusUnprocessableEntity, "no feasible schedule under current hard constraints")
	ErrSolverTimeout      = New("SOLVER_TIMEOUT", http.StatusUnprocessableEntity, "solver timed out without an incumbent")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// ErrCacheMiss signals an empty cache lookup; callers fall back to the
// database.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	e := FromError(err)
	return e != nil && e.Code == code
}
