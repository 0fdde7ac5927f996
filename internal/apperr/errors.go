package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies a failure class of the inference pipeline.
type Code string

const (
	Unauthorized         Code = "UNAUTHORIZED"
	UnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"
	BadInput             Code = "BAD_INPUT"
	PayloadTooLarge      Code = "PAYLOAD_TOO_LARGE"
	InferenceFailed      Code = "INFERENCE_FAILED"
	MethodNotAllowed     Code = "METHOD_NOT_ALLOWED"
)

// Error is a classified pipeline failure. Message is safe to return to clients;
// Cause is for server-side logs only.
type Error struct {
	Code    Code
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewUnauthorized is the single denial value for every credential failure.
func NewUnauthorized(cause error) *Error {
	return &Error{
		Code:    Unauthorized,
		Message: "Could not validate credentials",
		Status:  http.StatusUnauthorized,
		Cause:   cause,
	}
}

func NewUnsupportedMediaType(mediaType string, allowed []string) *Error {
	return &Error{
		Code:    UnsupportedMediaType,
		Message: fmt.Sprintf("Unsupported media type: %s. It must be one of [%s]", mediaType, strings.Join(allowed, ", ")),
		Status:  http.StatusUnsupportedMediaType,
	}
}

func NewBadInput(message string, cause error) *Error {
	return &Error{
		Code:    BadInput,
		Message: message,
		Status:  http.StatusBadRequest,
		Cause:   cause,
	}
}

func NewPayloadTooLarge(limit int64) *Error {
	return &Error{
		Code:    PayloadTooLarge,
		Message: fmt.Sprintf("Upload exceeds %d bytes", limit),
		Status:  http.StatusRequestEntityTooLarge,
	}
}

// NewInferenceFailed hides the engine error from the client.
func NewInferenceFailed(cause error) *Error {
	return &Error{
		Code:    InferenceFailed,
		Message: "Inference failed",
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}

func NewMethodNotAllowed(method string) *Error {
	return &Error{
		Code:    MethodNotAllowed,
		Message: fmt.Sprintf("Method %s not allowed", method),
		Status:  http.StatusMethodNotAllowed,
	}
}

// StatusOf maps any error to an HTTP status. Unclassified errors are 500.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the classification of err, or the empty code.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}
