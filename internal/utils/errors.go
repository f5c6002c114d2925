package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNetwork    ErrorType = "NETWORK"
	ErrorTypeProvider   ErrorType = "PROVIDER"
	ErrorTypeDecode     ErrorType = "DECODE"
	ErrorTypeRender     ErrorType = "RENDER"
	ErrorTypeInternal   ErrorType = "INTERNAL"
	ErrorTypeConfig     ErrorType = "CONFIG"
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Retryable bool                   `json:"retryable"`
	Component string                 `json:"component"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds additional details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message, component string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Component: component,
		Timestamp: time.Now().UTC(),
		Retryable: errorType == ErrorTypeNetwork || errorType == ErrorTypeTimeout,
	}
}

// WrapError wraps an existing error with application error context
func WrapError(err error, errorType ErrorType, code, message, component string) *AppError {
	appErr := NewAppError(errorType, code, message, component)
	appErr.Cause = err
	return appErr
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"service unavailable",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// GetErrorType extracts the error type from an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// LogError logs an error with its classification on the given logger
func LogError(err error, logger *Logger, what string) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = globalLogger
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		logger.Error("%s: type=%s code=%s retryable=%t component=%s: %v",
			what, appErr.Type, appErr.Code, appErr.Retryable, appErr.Component, err)
		return
	}
	logger.Error("%s: %v", what, err)
}
