package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRequestBlocked is returned while the backend throttle window is exhausted.
	ErrRequestBlocked = errors.New("request blocked: backend rate limit exhausted")

	// ErrMalformedResponse is returned when a list body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed list response")

	// ErrServerReportedFailure is returned for a well-formed body whose status
	// discriminator reports failure.
	ErrServerReportedFailure = errors.New("server reported failure")
)

// APIError is a failed backend call with its HTTP context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	RequestID  string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("api %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass carried by err, or "" when err is not an APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx validation/auth errors will not change on retry
		return false
	}
}
