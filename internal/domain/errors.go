package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error envelope type tags.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeInternal       = "internal_error"

	internalErrorMessage = "Internal server error"
)

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// FieldViolation names one field that failed validation and the violated constraint.
type FieldViolation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationError is returned when an inbound request is malformed or out of range.
// It is never retried and is reported to the caller with field-level detail.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// HasField reports whether any violation targets the given field path.
func (e *ValidationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// BackendUnreachableError is a transport-level failure talking to the backend
// (connection refused, DNS failure, connect timeout).
type BackendUnreachableError struct {
	URL string
	Err error
}

func (e *BackendUnreachableError) Error() string {
	return fmt.Sprintf("backend unreachable at %s: %v", e.URL, e.Err)
}

func (e *BackendUnreachableError) Unwrap() error {
	return e.Err
}

// BackendError is a non-2xx response from the backend.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// StreamDecodeError describes a backend stream line that could not be decoded.
// The reframer discards such lines and keeps reading.
type StreamDecodeError struct {
	Payload string
	Err     error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("malformed stream event: %v", e.Err)
}

func (e *StreamDecodeError) Unwrap() error {
	return e.Err
}

// ErrorEnvelope is the uniform error body returned to callers.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a message, a coarse category tag, and a numeric code.
type ErrorBody struct {
	Message string           `json:"message"`
	Type    string           `json:"type"`
	Code    int              `json:"code"`
	Details []FieldViolation `json:"details,omitempty"`
}

// InternalErrorEnvelope is the envelope for every generation failure.
// The underlying cause is never included.
func InternalErrorEnvelope() ErrorEnvelope {
	return ErrorEnvelope{
		Error: ErrorBody{
			Message: internalErrorMessage,
			Type:    ErrorTypeInternal,
			Code:    http.StatusInternalServerError,
		},
	}
}

// ValidationErrorEnvelope reports a rejected request with its field violations.
func ValidationErrorEnvelope(err *ValidationError) ErrorEnvelope {
	return ErrorEnvelope{
		Error: ErrorBody{
			Message: err.Error(),
			Type:    ErrorTypeInvalidRequest,
			Code:    http.StatusUnprocessableEntity,
			Details: err.Violations,
		},
	}
}
