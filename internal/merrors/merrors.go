// Package merrors defines the error taxonomy shared across Mnemosyne's
// components and its mapping onto JSON-RPC 2.0 error codes at the
// transport boundary.
package merrors

import (
	"errors"
	"fmt"
)

// Kind is one of the eight error kinds surfaced to callers.
type Kind string

const (
	KindInvalidParams     Kind = "InvalidParams"
	KindInvalidNamespace  Kind = "InvalidNamespace"
	KindNotFound          Kind = "NotFound"
	KindEnrichmentFailed  Kind = "EnrichmentFailed"
	KindStorageUnavailable Kind = "StorageUnavailable"
	KindConflict          Kind = "Conflict"
	KindTimeout           Kind = "Timeout"
	KindInternalError     Kind = "InternalError"
)

// rpcCode maps each Kind to its JSON-RPC 2.0 error code per the wire
// protocol in SPEC_FULL.md §6.2.
var rpcCode = map[Kind]int{
	KindInvalidParams:      -32602,
	KindInternalError:      -32603,
	KindStorageUnavailable: -32000,
	KindNotFound:           -32001,
	KindEnrichmentFailed:   -32002,
	KindInvalidNamespace:   -32003,
	// Conflict and Timeout have no dedicated wire code in §6.2; they map to
	// InternalError's code at the transport boundary but keep their own Kind
	// internally so callers can distinguish "ignorable no-op" (Conflict)
	// from "caller may retry" (Timeout) in logs and job bookkeeping.
	KindConflict: -32603,
	KindTimeout:  -32603,
}

// Error is the rich, component-internal error type. It implements Unwrap so
// %w-wrapped causes remain inspectable with errors.Is/errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, carrying cause as context.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to KindInternalError otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// RPCCode returns the JSON-RPC 2.0 error code for err's Kind.
func RPCCode(err error) int {
	kind := KindOf(err)
	if code, ok := rpcCode[kind]; ok {
		return code
	}
	return rpcCode[KindInternalError]
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
