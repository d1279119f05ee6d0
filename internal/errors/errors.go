// Package errors defines the error taxonomy shared by every core package:
// a closed set of codes callers can switch on, instead of sentinel values
// scattered across packages.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Code identifies a category of failure a caller can react to.
type Code string

const (
	// InvalidReference means a container URI did not match the reference grammar.
	InvalidReference Code = "invalid_reference"
	// FileNotFound means a local blob, annotation file, or layout component is missing.
	FileNotFound Code = "file_not_found"
	// PathTraversal means an output or archive-member path escaped its base directory.
	PathTraversal Code = "path_traversal"
	// SchemaInvalid means a manifest, layer, or index failed structural validation.
	SchemaInvalid Code = "schema_invalid"
	// ProtocolError means the registry returned a non-2xx status outside the auth handshake.
	ProtocolError Code = "protocol_error"
	// AuthenticationFailed means the full auth retry dance still left the server refusing.
	AuthenticationFailed Code = "authentication_failed"
	// UnsupportedMediaType means layout traversal hit a mediaType other than manifest or index.
	UnsupportedMediaType Code = "unsupported_media_type"
	// VersionMismatch means imageLayoutVersion was not the pinned version.
	VersionMismatch Code = "version_mismatch"
)

// Error is the concrete error type returned by every package in this module.
// It carries enough context (URL, code, cause) for a caller to decide
// whether to retry, and implements Unwrap so errors.Is/As keep working
// through the chain.
type Error struct {
	Code      Code
	Operation string
	URL       string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	switch {
	case e.URL != "" && e.Operation != "":
		return fmt.Sprintf("%s: %s (%s): %s", e.Operation, e.Message, e.URL, e.Code)
	case e.Operation != "":
		return fmt.Sprintf("%s: %s: %s", e.Operation, e.Message, e.Code)
	default:
		return fmt.Sprintf("%s: %s", e.Message, e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the outer retry decorator (see retry.go) should
// attempt this operation again. AuthenticationFailed, InvalidReference,
// PathTraversal, SchemaInvalid and VersionMismatch never retry; every
// other code is left to the caller's retry budget.
func (e *Error) Retryable() bool {
	switch e.Code {
	case AuthenticationFailed, InvalidReference, PathTraversal, SchemaInvalid, VersionMismatch:
		return false
	default:
		return true
	}
}

// New constructs an *Error with the given code and formatted message.
func New(code Code, operation, format string, args ...interface{}) *Error {
	return &Error{Code: code, Operation: operation, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error carrying cause as its Unwrap target. If
// cause doesn't already carry a stack trace (pkg/errors' StackTrace
// interface), one is captured here so a caller logging this error
// can print where the original failure happened, not just where it
// was last wrapped.
func Wrap(cause error, code Code, operation, format string, args ...interface{}) *Error {
	type stackTracer interface {
		StackTrace() pkgerrors.StackTrace
	}
	if _, ok := cause.(stackTracer); !ok {
		cause = pkgerrors.WithStack(cause)
	}
	return &Error{Code: code, Operation: operation, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithURL attaches the request URL that produced the error, for log/debug context.
func (e *Error) WithURL(url string) *Error {
	e.URL = url
	return e
}

// Is allows errors.Is(err, errors.InvalidReference)-style checks by code,
// walking Unwrap the way the standard errors package does.
func Is(err error, code Code) bool {
	for err != nil {
		if oe, ok := err.(*Error); ok {
			return oe.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
