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

// Package errors provides lightweight wrapping helpers shared across the
// module for internal plumbing errors. These are distinct from
// pkg/datastorage/validation's RFC 7807 problem documents: those are for
// errors that cross an HTTP boundary, these are for everything else
// (repository internals, provider clients, the orchestrator).
package errors

import (
	"fmt"
	"strings"
)

// OperationError names the action that failed, optionally which
// component and resource were involved, and wraps the underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to %s", e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal wrapped error: "failed to <action>[: <cause>]".
// Unlike FailedToWithDetails it does not return an *OperationError.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{Operation: action, Component: component, Resource: resource, Cause: cause}
}

// Wrapf prepends formatted context to err, returning nil for a nil err
// so callers can unconditionally wrap return values.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError wraps a repository-layer failure.
func DatabaseError(action string, cause error) error {
	return FailedToWithDetails(action, "database", "", cause)
}

// NetworkError wraps a failed call to a named endpoint.
func NetworkError(action, endpoint string, cause error) error {
	return FailedToWithDetails(action, "network", endpoint, cause)
}

// ValidationError describes a single invalid field, independent of the
// RFC 7807 ValidationError used at the HTTP boundary.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError describes a bad or missing configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError describes an operation that exceeded its deadline.
func TimeoutError(action, elapsed string) error {
	return fmt.Errorf("timeout while %s after %s", action, elapsed)
}

// AuthenticationError describes a failed identity check.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError describes a failed permission check.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError describes a failure to decode a document in a named format.
func ParseError(what, format string, cause error) error {
	return Wrapf(cause, "parse %s as %s", what, format)
}

// retryableSubstrings lists fragments that mark an error as a transient
// class per spec.md §4.7 (db connection loss, store timeout, provider
// transient failure) rather than a permanent one.
var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"unavailable",
	"temporary",
	"deadline exceeded",
	"broken pipe",
	"eof",
}

// IsRetryable classifies an error as transient using its message; this
// is a best-effort fallback for errors that don't carry a typed class
// (see pkg/ingestion/orchestrator for the typed outcome preferred there).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableSubstrings {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Chain joins multiple non-nil errors into one, skipping nils. Returns
// nil if every error is nil, and the bare error unwrapped if exactly
// one is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msgs := make([]string, len(nonNil))
		for i, e := range nonNil {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
