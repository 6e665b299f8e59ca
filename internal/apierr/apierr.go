// Package apierr defines the small error taxonomy shared by every facade and
// handler, and the single mapping from error kind to HTTP status.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the abstract error categories a caller can branch on.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindUpstreamAPIError   Kind = "upstream_api_error"
	KindPoolExhausted      Kind = "pool_exhausted"
	KindUpstreamUnreach    Kind = "upstream_unreachable"
	KindSerializationError Kind = "serialization_error"
	KindInternal           Kind = "internal"
)

// Error is the typed error every facade and handler returns.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	UpstreamStatus int // only set for KindUpstreamAPIError
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Unauthenticated(message string) *Error { return newErr(KindUnauthenticated, message, nil) }
func Forbidden(message string) *Error       { return newErr(KindForbidden, message, nil) }
func NotFound(message string) *Error        { return newErr(KindNotFound, message, nil) }
func Conflict(message string) *Error        { return newErr(KindConflict, message, nil) }
func PoolExhausted(message string) *Error   { return newErr(KindPoolExhausted, message, nil) }
func UpstreamUnreachable(message string, cause error) *Error {
	return newErr(KindUpstreamUnreach, message, cause)
}
func SerializationError(message string, cause error) *Error {
	return newErr(KindSerializationError, message, cause)
}
func Internal(message string, cause error) *Error { return newErr(KindInternal, message, cause) }

// UpstreamAPIError wraps a status/body pair returned by the Kubernetes API.
func UpstreamAPIError(status int, message string, cause error) *Error {
	return &Error{Kind: KindUpstreamAPIError, Message: message, Cause: cause, UpstreamStatus: status}
}

// HTTPStatus maps an error (typed or not) to the HTTP status code that should
// be returned to the caller.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamAPIError:
		return mapUpstreamStatus(e.UpstreamStatus)
	case KindPoolExhausted, KindUpstreamUnreach:
		return http.StatusServiceUnavailable
	case KindSerializationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// mapUpstreamStatus maps a raw Kubernetes API status to the status class the
// facade presents to callers: 404->404, 409->409, other 4xx->400, 5xx->502.
func mapUpstreamStatus(status int) int {
	switch {
	case status == http.StatusNotFound:
		return http.StatusNotFound
	case status == http.StatusConflict:
		return http.StatusConflict
	case status >= 400 && status < 500:
		return http.StatusBadRequest
	case status >= 500:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-safe message for an error, never leaking
// upstream client internals for untyped errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
