// Package apperr classifies failures into the kinds the API surfaces to users.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindConfiguration
	KindAuthorization
	KindTransient
	KindFormat
	KindNotFound
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthorization:
		return "authorization"
	case KindTransient:
		return "transient"
	case KindFormat:
		return "format"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

var (
	ErrNotConfigured    = errors.New("backend is not configured")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid request")
	ErrUnsupported      = errors.New("unsupported file format")
	ErrCorrupt          = errors.New("document could not be parsed")
)

// Error attaches a kind and a user-facing message to an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Transient wraps an I/O failure so it is reported as retryable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Message: op, Err: err}
}

// Format wraps a parse failure.
func Format(format string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFormat, Message: fmt.Sprintf("could not read %s", format), Err: err}
}

func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		return KindConfiguration
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrPermissionDenied):
		return KindAuthorization
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrCorrupt):
		return KindFormat
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindInternal
}

// Status maps an error to the HTTP status the handlers answer with.
func Status(err error) int {
	switch Classify(err) {
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindAuthorization:
		if errors.Is(err, ErrUnauthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case KindTransient:
		return http.StatusBadGateway
	case KindFormat:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Message returns text fit for display. Internal errors never leak their cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" && e.Kind != KindInternal {
		return e.Message
	}
	switch Classify(err) {
	case KindConfiguration:
		return "The storage backend is not configured. Set S3_BUCKET and the document store settings, then restart."
	case KindAuthorization:
		if errors.Is(err, ErrUnauthenticated) {
			return "Please sign in to continue."
		}
		return "You do not have permission to access this document."
	case KindTransient:
		return "A network error occurred. Please try again."
	case KindFormat:
		return "The file could not be opened. Download the original file instead."
	case KindNotFound:
		return "The requested item was not found."
	case KindInvalid:
		return err.Error()
	}
	return "Something went wrong."
}
