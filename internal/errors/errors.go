// Package errors defines stable error codes for all mindgraph failure modes.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// QuerySyntax indicates the structured query text failed to parse
	QuerySyntax ErrorCode = "QUERY_SYNTAX"
	// InputTooLarge indicates query text exceeded the configured limit
	InputTooLarge ErrorCode = "INPUT_TOO_LARGE"
	// InputRejected indicates query text contained disallowed markup
	InputRejected ErrorCode = "INPUT_REJECTED"
	// InvalidReference indicates an edge or mutation referenced a missing node
	InvalidReference ErrorCode = "INVALID_REFERENCE"
	// NodeNotFound indicates a node lookup by id failed
	NodeNotFound ErrorCode = "NODE_NOT_FOUND"
	// StorageCorrupt indicates the persisted document failed validation
	StorageCorrupt ErrorCode = "STORAGE_CORRUPT"
	// StorePathEscape indicates a storage path resolved outside the project root
	StorePathEscape ErrorCode = "STORE_PATH_ESCAPE"
	// QueryNotFound indicates a saved query name is unknown
	QueryNotFound ErrorCode = "QUERY_NOT_FOUND"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error is a mindgraph error with a stable code, message, and optional cause.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates an Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the error code of err, or InternalError if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
