package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the HTTP layer can pick a status code.
type ErrorKind string

const (
	// KindValidation marks a malformed client request.
	KindValidation ErrorKind = "validation_error"
	// KindNetwork marks a connect/read timeout or another transport failure.
	KindNetwork ErrorKind = "network_error"
	// KindAPI marks a non-2xx upstream status or a 2xx body missing expected fields.
	KindAPI ErrorKind = "api_error"
	// KindParse marks an undecodable body or an unexpected content type.
	KindParse ErrorKind = "parse_error"
	// KindConfig marks an invalid or unreadable configuration.
	KindConfig ErrorKind = "config_error"
)

// Error is the typed failure returned by every stage of the gateway.
type Error struct {
	Kind    ErrorKind
	Message string

	// StatusCode is the upstream HTTP status for KindAPI errors (0 if not applicable).
	StatusCode int

	// Body is the upstream response body text for KindAPI errors.
	Body string

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var msg string
	switch {
	case e.StatusCode > 0 && e.Body != "":
		msg = fmt.Sprintf("%s: status %d, text %s", e.Message, e.StatusCode, e.Body)
	case e.StatusCode > 0:
		msg = fmt.Sprintf("%s: status %d", e.Message, e.StatusCode)
	default:
		msg = e.Message
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewValidationError reports a malformed client request.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewAPIError reports an upstream status failure or a response missing required fields.
func NewAPIError(status int, body, message string) *Error {
	return &Error{Kind: KindAPI, Message: message, StatusCode: status, Body: body}
}

// NewParseError reports a decode failure or content-type mismatch.
func NewParseError(message string, cause error) *Error {
	return &Error{Kind: KindParse, Message: message, Cause: cause}
}

// NewNetworkError reports a transport-level failure.
func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Cause: cause}
}

// NewConfigError reports an invalid configuration.
func NewConfigError(message string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}
