package canvas

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrGetNotAllowed is returned when Call is used with the GET method.
	// Reads must go through Get or the pagination package, which handle
	// the Link-header page protocol; the mutate path does not.
	ErrGetNotAllowed = errors.New("GET requests must use Get or pagination, not Call")
)

// ResponseError is returned when the remote answered with status >= 400.
// It carries the full response envelope for caller inspection.
type ResponseError struct {
	Response *Response
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("canvas: response error (status %d): %s", e.Response.StatusCode, truncate(e.Response.Text, 120))
}

// RequestError is returned for transport-level failures that happened
// before any HTTP status was obtained, including body-encoding failures.
type RequestError struct {
	Cause error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("canvas: request error: %v", e.Cause)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// TimeoutError is returned when a per-call or instance-level deadline
// elapsed before a response arrived.
type TimeoutError struct {
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("canvas: timeout: %v", e.Cause)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// PaginationError is returned when a page expected to contain a list
// answered with a non-list body. Callers paginating a single-object
// resource must use the page-level API instead.
type PaginationError struct {
	Response *Response
}

// Error implements the error interface.
func (e *PaginationError) Error() string {
	return fmt.Sprintf("canvas: pagination error: expected a list body, got: %s", truncate(e.Response.Text, 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
