// Package faults defines the error taxonomy shared across the intake
// service. Handlers and external-service clients classify failures into a
// small set of kinds so the caller can decide between retrying, refreshing
// the session, or contacting an administrator.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// KindValidation covers field-level validation failures. Recoverable by
	// user correction; never fatal.
	KindValidation Kind = "validation"
	// KindExtraction covers document-extraction failures. Non-fatal; the
	// user falls back to manual entry.
	KindExtraction Kind = "extraction"
	// KindPermission covers role/authorization failures on an action.
	KindPermission Kind = "permission"
	// KindSessionExpired covers auth/session expiry; the client must refresh.
	KindSessionExpired Kind = "session_expired"
	// KindService covers retryable upstream service failures (mapping,
	// rendering, dispatch).
	KindService Kind = "service"
	// KindContract covers programming-contract violations, e.g. attempting
	// to open a second active submission. These should never occur in a
	// correct deployment and are logged loudly.
	KindContract Kind = "contract"
)

// Error carries a kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a fault with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindService for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindService
}

// Retryable reports whether the failure is worth retrying as-is. Permission
// and session errors need out-of-band action first; validation and contract
// errors need a different request entirely.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindService, KindExtraction:
		return true
	}
	return false
}

// HTTPStatus maps a fault kind to the response status used by handlers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPermission:
		return http.StatusForbidden
	case KindSessionExpired:
		return http.StatusUnauthorized
	case KindContract:
		return http.StatusConflict
	case KindExtraction:
		return http.StatusBadGateway
	}
	return http.StatusBadGateway
}

// FromStatus classifies an upstream HTTP status into the taxonomy.
func FromStatus(op string, status int) *Error {
	switch {
	case status == http.StatusUnauthorized || status == 419:
		// 419 is the nonstandard session-timeout status some upstreams return.
		return New(KindSessionExpired, op, "upstream rejected credentials (status %d)", status)
	case status == http.StatusForbidden:
		return New(KindPermission, op, "upstream denied access (status %d)", status)
	default:
		return New(KindService, op, "upstream returned status %d", status)
	}
}
