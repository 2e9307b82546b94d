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

// Package apierror carries the NL query and ingestion pipelines' own
// error taxonomy — richer than internal/errors.ErrorType's generic
// HTTP-boundary categories because a query or ingestion failure needs
// to tell the caller exactly which pipeline stage rejected it
// (validation vs generation vs execution vs a malformed upload), not
// just "bad request" or "internal error". It renders onto the same
// RFC 7807 problem+json wire format pkg/datastorage/validation
// establishes for the rest of the module: Type is carried as an
// "error_type" extension member rather than inventing a second
// response shape for these two pipelines.
package apierror

import (
	"fmt"

	"github.com/argoplatform/argonaut/pkg/datastorage/validation"
)

// Type names the pipeline stage or failure class a query or ingestion
// request failed at.
type Type string

const (
	TypeValidationFailure    Type = "validation_failure"
	TypeGenerationFailure    Type = "generation_failure"
	TypeExecutionError       Type = "execution_error"
	TypeTimeout              Type = "timeout"
	TypeConfigurationError   Type = "configuration_error"
	TypeUnsupportedFile      Type = "unsupported_file"
	TypeTooLarge             Type = "too_large"
	TypeMalformedFile        Type = "malformed_file"
	TypeTransientStoreError  Type = "transient_store_error"
	TypePermanentIngestError Type = "permanent_ingest_error"
	TypeCancelled            Type = "cancelled"
)

// StatusCode is the HTTP status the query and ingestion httpapi
// handlers map each Type to.
func (t Type) StatusCode() int {
	switch t {
	case TypeValidationFailure, TypeUnsupportedFile, TypeMalformedFile:
		return 422
	case TypeTooLarge:
		return 413
	case TypeTimeout:
		return 504
	case TypeTransientStoreError:
		return 503
	case TypeCancelled:
		return 499
	case TypeGenerationFailure:
		return 502
	case TypeConfigurationError, TypeExecutionError, TypePermanentIngestError:
		return 500
	default:
		return 500
	}
}

// Error is the wire shape every query/ingestion handler error
// response serializes to.
type Error struct {
	Type    Type        `json:"error_type"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

const problemBaseURI = "https://argoplatform.dev/errors"

// ToRFC7807 renders e as the same problem+json document every other
// handler in this module returns, with Type carried as an extension
// member so a client can branch on the pipeline-stage vocabulary
// without losing the generic problem+json shape.
func (e *Error) ToRFC7807() *validation.RFC7807Problem {
	ext := map[string]interface{}{"error_type": string(e.Type)}
	if e.Details != nil {
		ext["details"] = e.Details
	}
	return &validation.RFC7807Problem{
		Type:       problemBaseURI + "/" + string(e.Type),
		Title:      humanTitle(e.Type),
		Status:     e.Type.StatusCode(),
		Detail:     e.Message,
		Extensions: ext,
	}
}

func humanTitle(t Type) string {
	switch t {
	case TypeValidationFailure:
		return "Query Validation Failed"
	case TypeGenerationFailure:
		return "SQL Generation Failed"
	case TypeExecutionError:
		return "Query Execution Failed"
	case TypeTimeout:
		return "Query Timed Out"
	case TypeConfigurationError:
		return "Configuration Error"
	case TypeUnsupportedFile:
		return "Unsupported File"
	case TypeTooLarge:
		return "Upload Too Large"
	case TypeMalformedFile:
		return "Malformed File"
	case TypeTransientStoreError:
		return "Storage Temporarily Unavailable"
	case TypePermanentIngestError:
		return "Ingestion Failed"
	case TypeCancelled:
		return "Request Cancelled"
	default:
		return "Error"
	}
}

// New builds an Error with no details.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(t Type, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WithDetails builds an Error carrying a structured Details payload,
// such as the sqlvalidator violations that caused a validation_failure.
func WithDetails(t Type, message string, details interface{}) *Error {
	return &Error{Type: t, Message: message, Details: details}
}
