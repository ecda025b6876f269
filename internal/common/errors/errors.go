// Package errors provides the standardized error taxonomy shared by the
// assistant, the dispatcher and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// ErrCodeExtractionMiss is informational: an unknown intent is answered
	// with a fallback message and never surfaced as a failure.
	ErrCodeExtractionMiss ErrorCode = "EXTRACTION_MISS"

	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnknownOperation         ErrorCode = "UNKNOWN_OPERATION"
	ErrCodeInvalidRequest           ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidConfirmationToken ErrorCode = "INVALID_CONFIRMATION_TOKEN"

	ErrCodeProviderNotFound        ErrorCode = "PROVIDER_NOT_FOUND"
	ErrCodeProviderQuotaExceeded   ErrorCode = "PROVIDER_QUOTA_EXCEEDED"
	ErrCodeProviderTransportFailed ErrorCode = "PROVIDER_TRANSPORT_FAILED"
	ErrCodeProviderTimeout         ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeProviderError           ErrorCode = "PROVIDER_ERROR"

	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error.
func NewValidationError(message, details string) *StandardError {
	return newError(ErrCodeValidationFailed, message, details, false, nil)
}

// NewUnknownOperationError is returned when a confirmed operation is not in the catalog.
func NewUnknownOperationError(operation string) *StandardError {
	return newError(ErrCodeUnknownOperation, "Unknown operation: "+operation, "", false, nil).
		WithMetadata("operation", operation)
}

// NewInvalidRequestError wraps malformed transport input.
func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false, nil)
}

// NewInvalidTokenError rejects a missing, expired or mismatched proposal token.
func NewInvalidTokenError(details string) *StandardError {
	return newError(ErrCodeInvalidConfirmationToken, "Confirmation token rejected", details, false, nil)
}

// NewProviderNotFoundError wraps a provider "resource not found" failure.
func NewProviderNotFoundError(message string, cause error) *StandardError {
	return newError(ErrCodeProviderNotFound, message, "", false, cause)
}

// NewProviderQuotaExceededError wraps a provider quota rejection.
func NewProviderQuotaExceededError(message string, cause error) *StandardError {
	return newError(ErrCodeProviderQuotaExceeded, message, "", false, cause)
}

// NewProviderTransportError wraps network level failures talking to the provider.
func NewProviderTransportError(message string, cause error) *StandardError {
	return newError(ErrCodeProviderTransportFailed, message, "", true, cause)
}

// NewProviderTimeoutError is returned when a provider call exceeds its deadline.
func NewProviderTimeoutError(operation string, timeout time.Duration, cause error) *StandardError {
	return newError(ErrCodeProviderTimeout,
		fmt.Sprintf("Provider call %s timed out after %s", operation, timeout), "", true, cause)
}

// NewProviderError wraps any other provider-side failure with its own message.
func NewProviderError(message string, cause error) *StandardError {
	return newError(ErrCodeProviderError, message, "", false, cause)
}

// NewPersistenceError wraps an audit log write failure. It is fatal to the request.
func NewPersistenceError(cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodePersistenceFailed, "Failed to record interaction", details, true, cause)
}

// ==========================
// 3. Inspection Helpers
// ==========================

// AsStandard extracts a *StandardError from the chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsCode reports whether any error in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// CodeOf returns the code of err, or INTERNAL_ERROR for unclassified errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// MessageOf returns the human readable message carried by err.
func MessageOf(err error) string {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Message
	}
	return err.Error()
}

// IsProviderError reports whether err came from the infrastructure provider.
func IsProviderError(err error) bool {
	return GetErrorCategory(CodeOf(err)) == "PROVIDER"
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "PROVIDER"):
		return "PROVIDER"
	case strings.HasPrefix(codeStr, "PERSISTENCE"):
		return "PERSISTENCE"
	case strings.Contains(codeStr, "EXTRACTION"):
		return "EXTRACTION"
	case strings.Contains(codeStr, "INVALID") ||
		strings.Contains(codeStr, "VALIDATION") ||
		strings.Contains(codeStr, "UNKNOWN_OPERATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code to the status used by the direct endpoints.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeUnknownOperation, ErrCodeInvalidRequest,
		ErrCodeInvalidConfirmationToken:
		return http.StatusBadRequest
	case ErrCodeProviderNotFound:
		return http.StatusNotFound
	case ErrCodeProviderQuotaExceeded:
		return http.StatusForbidden
	case ErrCodeProviderTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeProviderTransportFailed, ErrCodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
