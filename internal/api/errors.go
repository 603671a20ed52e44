// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/docling-gateway/backend/internal/conversion"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"status" msgpack:"status"`
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"error" msgpack:"error"`
	Detail  string `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error. The message doubles as the detail so
// clients reading either field see the reason.
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
		Detail:  message,
	}
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
	if cause != nil {
		err.Detail = cause.Error()
	}
	return err
}

// NewTimeoutError creates a 408 Request Timeout error
func NewTimeoutError(detail string) *APIError {
	return &APIError{
		Status:  http.StatusRequestTimeout,
		Code:    "REQUEST_TIMEOUT",
		Message: "Request timeout",
		Detail:  detail,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Detail = cause.Error()
	}
	return err
}

// FromConversionError maps a conversion error kind to its HTTP representation.
func FromConversionError(err error) *APIError {
	msg := conversion.Message(err)

	switch conversion.KindOf(err) {
	case conversion.KindValidation:
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "VALIDATION_ERROR",
			Message: msg,
			Detail:  msg,
		}
	case conversion.KindTimeout:
		return NewTimeoutError(err.Error())
	case conversion.KindFetch:
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "FETCH_FAILED",
			Message: msg,
			Detail:  err.Error(),
		}
	case conversion.KindConvert:
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "CONVERSION_FAILED",
			Message: msg,
			Detail:  err.Error(),
		}
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var convErr *conversion.Error
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &convErr):
		apiErr = FromConversionError(err)
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
		if httpErr.Internal != nil {
			apiErr.Detail = httpErr.Internal.Error()
		}
	default:
		apiErr = NewInternalError("An unexpected error occurred", err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	RespondWithError(c, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return respond(c, err.Status, err)
}
