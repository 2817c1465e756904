// Package toolerrors provides a structured, serialization-friendly error type
// for internal plumbing failures (tool invocation, store access, transport).
// ToolError preserves causal chains and supports errors.Is/As, and carries an
// optional agentstate error code so a failure raised deep inside toolclient
// or a node can surface through to an ErrorEnvelope (spec §7) with the same
// taxonomy the rest of the turn uses, instead of collapsing to a bare string.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError is a structured failure that preserves message and causal
// context while implementing the standard error interface. Errors may nest
// via Cause to retain diagnostics across retries.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Code is one of agentstate's ErrCode constants (e.g. UPSTREAM_ERROR,
	// PERMISSION_DENIED), set by the call site that knows why the failure
	// happened. Empty when the caller hasn't classified it.
	Code string
	// Cause links to the underlying error, enabling chains with errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError with the provided message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// Coded constructs a ToolError tagged with an agentstate error code.
func Coded(code, message string) *ToolError {
	return &ToolError{Code: code, Message: message}
}

// WithCode returns e tagged with code, preserving message and cause. e is
// not mutated; call sites chain it onto a constructor, e.g.
// toolerrors.New("...").WithCode(agentstate.ErrCodeUpstream).
func (e *ToolError) WithCode(code string) *ToolError {
	if e == nil {
		return nil
	}
	tagged := *e
	tagged.Code = code
	return &tagged
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// CodeOf walks err's ToolError chain (outermost first) and returns the first
// non-empty Code found, or "" if err isn't a ToolError or none of the chain
// was classified. Used at the node boundary to build an ErrorEnvelope with
// the code the failing call site chose rather than a generic default.
func CodeOf(err error) string {
	for te := FromError(err); te != nil; te = te.Cause {
		if te.Code != "" {
			return te.Code
		}
	}
	return ""
}
