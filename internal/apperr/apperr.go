// Package apperr defines the closed set of error kinds the orchestration
// server can return, and the HTTP status each maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds named in the control-plane contract.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid-request"
	KindNotFound           Kind = "not-found"
	KindInvalidTransition  Kind = "invalid-transition"
	KindLaunchFailure      Kind = "launch-failure"
	KindTimeout            Kind = "timeout"
	KindDeadRecipient      Kind = "dead-recipient"
	KindMuxUnavailable     Kind = "mux-unavailable"
	KindScriptFailure      Kind = "script-failure"
	KindInternal           Kind = "internal"
)

// Error is a terminal-aware, kind-tagged error. It wraps an optional cause so
// callers can still errors.Is/As against lower-level sentinels.
type Error struct {
	Kind       Kind
	Message    string
	TerminalID string
	Cause      error
}

func (e *Error) Error() string {
	if e.TerminalID != "" {
		return fmt.Sprintf("%s: %s (terminal %s)", e.Kind, e.Message, e.TerminalID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no terminal context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithTerminal attaches a terminal id for the HTTP response body.
func (e *Error) WithTerminal(id string) *Error {
	e2 := *e
	e2.TerminalID = id
	return &e2
}

// As reports whether err is (or wraps) an *Error, and returns it.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the status code the API layer should send.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindDeadRecipient:
		return http.StatusConflict
	case KindLaunchFailure, KindMuxUnavailable, KindScriptFailure:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
