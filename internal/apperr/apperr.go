// Package apperr classifies errors returned by the domain services so that
// transports can map them to status codes without importing storage packages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a coarse-grained error category.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindPersistence   Kind = "persistence"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
)

// Error wraps an underlying error with the failing operation, its kind and
// the entity it concerns (request id, campaign/address pair, ...).
type Error struct {
	Op     string
	Kind   Kind
	Entity string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Entity != "" {
		base += fmt.Sprintf(" (%s)", e.Entity)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation reports malformed input. Never retried.
func Validation(op, entity string, err error) error {
	return &Error{Op: op, Kind: KindValidation, Entity: entity, Err: err}
}

// NotFound reports an unknown request, campaign or plan.
func NotFound(op, entity string, err error) error {
	return &Error{Op: op, Kind: KindNotFound, Entity: entity, Err: err}
}

// Persistence reports an unavailable or timed out backing store. Callers may
// retry with backoff; services never retry on their own.
func Persistence(op, entity string, err error) error {
	return &Error{Op: op, Kind: KindPersistence, Entity: entity, Err: err}
}

// Authorization reports an actor lacking the required role.
func Authorization(op, entity string, err error) error {
	return &Error{Op: op, Kind: KindAuthorization, Entity: entity, Err: err}
}

// Conflict reports a uniqueness violation.
func Conflict(op, entity string, err error) error {
	return &Error{Op: op, Kind: KindConflict, Entity: entity, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code transports respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code maps an error to the machine-readable code used in JSON error bodies.
func Code(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "INVALID_REQUEST"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAuthorization:
		return "FORBIDDEN"
	case KindConflict:
		return "CONFLICT"
	case KindPersistence:
		return "STORAGE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
