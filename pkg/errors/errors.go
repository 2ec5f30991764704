// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Axon.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Axon errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeUnauthorized indicates a capability check failed.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeOverloaded indicates the inference service signalled
	// rate-limiting or overload. This is the only class the model-tier
	// fallback acts on.
	CodeOverloaded ErrorCode = "OVERLOADED"

	// CodeLLMError indicates a non-overload inference failure.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeMemoryError indicates a memory store failure.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeStoreError indicates a durable store failure.
	CodeStoreError ErrorCode = "STORE_ERROR"

	// CodeSafetyRejected indicates the pre-flight safety scan rejected
	// a task directive.
	CodeSafetyRejected ErrorCode = "SAFETY_REJECTED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
)

// Error is a typed error with context for observability. It implements the
// error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Message     string         `json:"message"`
		Code        string         `json:"code"`
		Cause       string         `json:"cause,omitempty"`
		Recoverable bool           `json:"recoverable"`
		Context     map[string]any `json:"context,omitempty"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Cause:       causeString(e.Err),
		Recoverable: e.Recoverable,
		Context:     e.Context,
	})
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]any),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// CodeOf returns the error's code, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}
