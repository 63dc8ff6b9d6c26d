// Package failures classifies service errors so the transport layer can map them to
// responses without inspecting store or network internals.
package failures

import (
	"errors"
	"fmt"
)

// Kind enumerates the terminal failure classes a request can end in.
type Kind string

const (
	// KindInvalidInput marks malformed or oversized client input.
	KindInvalidInput Kind = "invalid_input"
	// KindUnauthenticated marks a missing or unverifiable credential.
	KindUnauthenticated Kind = "unauthenticated"
	// KindNotFound marks a lookup of an unknown resource.
	KindNotFound Kind = "not_found"
	// KindInternal marks store, network or programming failures.
	KindInternal Kind = "internal"
)

const internalMessage = "internal server error"

// Error is a classified failure with a stable machine code and a client-safe message.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Message reports the text that may be shown to the caller.
func (e *Error) Message() string {
	if e.kind == KindInternal || e.message == "" {
		return internalMessage
	}
	return e.message
}

// New builds a classified error. Code is composed as operation.reason.
func New(kind Kind, operation, reason, message string, cause error) error {
	return &Error{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(operation, reason, message string) error {
	return New(KindInvalidInput, operation, reason, message, nil)
}

// Unauthenticated builds a KindUnauthenticated error.
func Unauthenticated(operation, reason string, cause error) error {
	return New(KindUnauthenticated, operation, reason, "authentication required", cause)
}

// NotFound builds a KindNotFound error.
func NotFound(operation, reason, message string) error {
	return New(KindNotFound, operation, reason, message, nil)
}

// Internal builds a KindInternal error around cause.
func Internal(operation, reason string, cause error) error {
	return New(KindInternal, operation, reason, "", cause)
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Message()
	}
	return internalMessage
}

// CodeOf returns the dotted machine code for err, e.g. posts.submit.text_too_long,
// or an empty string when unclassified.
func CodeOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}
