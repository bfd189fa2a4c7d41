package threadline

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoConversation is returned when an operation needs a selected conversation.
var ErrNoConversation = errors.New("no conversation selected")

// ErrorCategory classifies errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates the error is temporary and the operation can be retried.
	// Examples: dropped connections, rate limits, server overload.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent indicates the error is not recoverable through retry.
	// Examples: invalid token, missing endpoint.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorRecovered indicates the error was handled locally and never
	// terminates a run. Malformed frame payloads fall in this category.
	ErrorRecovered ErrorCategory = "recovered"
)

// CategorizedError is an error that provides information about how it should be handled.
type CategorizedError interface {
	error
	Category() ErrorCategory
	StatusCode() int // HTTP status code if applicable, 0 otherwise
}

// TransportError reports a network or read failure on a byte stream.
// The stream that produced it is aborted.
type TransportError struct {
	Op    string // operation that failed, e.g. "read" or "request"
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Cause }

// Category returns ErrorTransient.
func (e *TransportError) Category() ErrorCategory { return ErrorTransient }

// StatusCode returns 0.
func (e *TransportError) StatusCode() int { return 0 }

// HTTPStatusError is returned when the backend answers with a non-2xx status.
// No part of the response body is processed as a stream.
type HTTPStatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("agui request failed: %s %s", e.Status, e.Body)
	}
	return fmt.Sprintf("agui request failed: %s", e.Status)
}

// Category returns ErrorTransient for 429 and 5xx responses, ErrorPermanent otherwise.
func (e *HTTPStatusError) Category() ErrorCategory {
	if e.Code == http.StatusTooManyRequests || (e.Code >= 500 && e.Code < 600) {
		return ErrorTransient
	}
	return ErrorPermanent
}

// StatusCode returns the HTTP status code.
func (e *HTTPStatusError) StatusCode() int { return e.Code }

// Unauthorized reports whether the backend rejected the bearer token.
func (e *HTTPStatusError) Unauthorized() bool { return e.Code == http.StatusUnauthorized }

// ProtocolDecodeError describes a frame payload that could not be parsed as JSON.
// It never fails a stream; the payload is downgraded to a raw event.
type ProtocolDecodeError struct {
	Payload string
	Cause   error
}

func (e *ProtocolDecodeError) Error() string {
	p := e.Payload
	if len(p) > 100 {
		p = p[:100]
	}
	return fmt.Sprintf("decode payload %q: %v", p, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ProtocolDecodeError) Unwrap() error { return e.Cause }

// Category returns ErrorRecovered.
func (e *ProtocolDecodeError) Category() ErrorCategory { return ErrorRecovered }

// StatusCode returns 0.
func (e *ProtocolDecodeError) StatusCode() int { return 0 }

// DeferralError reports a failed deferred-results request for a tool call.
// The tool call is released so that a later delivery may retry it.
type DeferralError struct {
	ToolCallID string
	Cause      error
}

func (e *DeferralError) Error() string {
	return fmt.Sprintf("deferred result for tool call %q: %v", e.ToolCallID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DeferralError) Unwrap() error { return e.Cause }

// Category returns the category of the wrapped error, or ErrorPermanent.
func (e *DeferralError) Category() ErrorCategory {
	var ce CategorizedError
	if errors.As(e.Cause, &ce) {
		return ce.Category()
	}
	return ErrorPermanent
}

// StatusCode returns the status code of the wrapped error, if any.
func (e *DeferralError) StatusCode() int {
	var ce CategorizedError
	if errors.As(e.Cause, &ce) {
		return ce.StatusCode()
	}
	return 0
}

// IsTransient returns true if the error is categorized as transient.
// It checks if the error or any wrapped error implements CategorizedError.
func IsTransient(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorTransient
	}
	return false
}

// IsUnauthorized reports whether err carries an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.Unauthorized()
}
