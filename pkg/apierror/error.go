package apierror

import (
	"encoding/json"
	"net/http"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithDetails attaches structured details to the error (e.g. available and
// requested quantities on an insufficient stock rejection).
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// ToJSON converts the error to JSON bytes.
func (e *Error) ToJSON() []byte {
	errBody := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errBody["details"] = e.Details
	}

	data, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   errBody,
	})
	return data
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
	}
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    message,
	}
}

// SessionExpired creates a 410 Gone error. Distinct from NotFound so the
// client can silently start a fresh cart instead of alarming the user.
func SessionExpired(message string) *Error {
	if message == "" {
		message = "Cart session has expired"
	}
	return &Error{
		StatusCode: http.StatusGone,
		Code:       "SESSION_EXPIRED",
		Message:    message,
	}
}

// InsufficientStock creates a 409 error carrying available vs requested.
func InsufficientStock(message string, available, requested int) *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       "INSUFFICIENT_STOCK",
		Message:    message,
		Details: map[string]any{
			"available": available,
			"requested": requested,
		},
	}
}

// Unavailable creates a 409 error for inactive products.
func Unavailable(message string) *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       "PRODUCT_UNAVAILABLE",
		Message:    message,
	}
}

// Conflict creates a 409 retryable transaction conflict error.
func Conflict(message string) *Error {
	if message == "" {
		message = "The operation conflicted with another request, please retry"
	}
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       "TRANSACTION_CONFLICT",
		Message:    message,
	}
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
	}
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    message,
	}
}
