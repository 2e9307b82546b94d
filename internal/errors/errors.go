/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the typed AppError used at every HTTP-facing
// boundary in this module (ingestion-service and query-service request
// handlers). It maps each ErrorType to a fixed HTTP status code and to
// a message safe to return to an external caller, keeping internal
// detail (table names, driver errors) out of responses while still
// available to logs via LogFields.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError for status-code mapping and safe
// message selection.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation: http.StatusBadRequest,
	ErrorTypeAuth:       http.StatusUnauthorized,
	ErrorTypeNotFound:   http.StatusNotFound,
	ErrorTypeConflict:   http.StatusConflict,
	ErrorTypeTimeout:    http.StatusRequestTimeout,
	ErrorTypeRateLimit:  http.StatusTooManyRequests,
	ErrorTypeDatabase:   http.StatusInternalServerError,
	ErrorTypeNetwork:    http.StatusInternalServerError,
	ErrorTypeInternal:   http.StatusInternalServerError,
}

// AppError is the structured error every handler in this module
// ultimately returns or logs.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

// New creates an AppError with no cause and no details.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodes[t],
	}
}

// Wrap creates an AppError carrying cause as its underlying error.
func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes Cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches extra context, modifying e in place and
// returning it for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf is WithDetails with a formatted message.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// NewValidationError builds a validation AppError. Its message is
// considered safe to return verbatim since callers construct it from
// field-level feedback, not internal state.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewDatabaseError wraps a repository failure, naming the failing
// operation without leaking the driver error to callers.
func NewDatabaseError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, fmt.Sprintf("database operation failed: %s", operation))
}

// NewNotFoundError builds a not-found AppError for the named resource.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

// NewAuthError builds an auth AppError.
func NewAuthError(message string) *AppError {
	return New(ErrorTypeAuth, message)
}

// NewTimeoutError builds a timeout AppError for the named operation.
func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

// GetType returns err's ErrorType, or ErrorTypeInternal for a
// non-AppError.
func GetType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status to respond with for err.
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the fixed strings returned to external
// callers for error types whose real message might leak internals.
var ErrorMessages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded, please try again later",
	ConcurrentModification: "The resource was modified concurrently, please retry",
}

// SafeErrorMessage returns the message safe to surface to an external
// caller. Validation messages pass through verbatim since they are
// built from field-level feedback; everything else maps to a fixed,
// detail-free string.
func SafeErrorMessage(err error) string {
	appErr, ok := err.(*AppError)
	if !ok {
		return "An unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeValidation:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeAuth:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeConflict:
		return ErrorMessages.ConcurrentModification
	default:
		return "An internal error occurred"
	}
}

// LogFields flattens err into a structured field set for zap/logrus.
// Plain (non-AppError) errors only contribute "error".
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}
	appErr, ok := err.(*AppError)
	if !ok {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins multiple non-nil errors with " -> ", skipping nils.
// Returns nil if every error is nil, and the bare error if exactly one
// is non-nil.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		for _, e := range errs {
			if e != nil {
				return e
			}
		}
		return nil
	default:
		return fmt.Errorf("%s", strings.Join(msgs, " -> "))
	}
}
