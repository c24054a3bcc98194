// Package apperr defines the error taxonomy shared by the store, the
// interaction core and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when an action needs a signed-in actor.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict is a uniqueness violation on insert.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks network or store unavailability. Only reads retry it.
	ErrTransient = errors.New("transient store failure")
	// ErrInvalidArgument rejects a request that breaks a domain rule.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden means the actor is known but may not touch the entity.
	ErrForbidden = errors.New("forbidden")
)

// NotFound wraps ErrNotFound with the kind and id that were missing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Invalid wraps ErrInvalidArgument with a reason.
func Invalid(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidArgument)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

// Transient wraps a driver error so callers can match ErrTransient and still
// unwrap the cause.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// Code is the stable machine-readable name of an error class.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "unavailable"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
