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

// Package validation defines the RFC 7807 "problem details" document
// every HTTP handler in this module renders an error as, plus
// ValidationError, the richer field-level error repositories and
// request binders raise before it's flattened into one.
package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ValidationError collects zero or more per-field failures against a
// single resource before being converted to an RFC7807Problem at the
// HTTP boundary.
type ValidationError struct {
	Resource    string
	Message     string
	FieldErrors map[string]string
}

// NewValidationError starts an empty field-error set for resource.
func NewValidationError(resource, message string) *ValidationError {
	return &ValidationError{
		Resource:    resource,
		Message:     message,
		FieldErrors: make(map[string]string),
	}
}

// AddFieldError records or overwrites the failure reason for field.
func (e *ValidationError) AddFieldError(field, reason string) {
	e.FieldErrors[field] = reason
}

func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return fmt.Sprintf("validation error on %s: %s", e.Resource, e.Message)
	}
	return fmt.Sprintf("validation error on %s: %s (fields: %v)", e.Resource, e.Message, e.FieldErrors)
}

// ToRFC7807 renders the validation error as a problem document.
func (e *ValidationError) ToRFC7807() *RFC7807Problem {
	return NewValidationErrorProblem(e.Resource, e.FieldErrors)
}

// RFC7807Problem is the "application/problem+json" document described
// by RFC 7807: Type/Title/Status/Detail/Instance plus free-form
// Extensions, all flattened to top-level JSON keys.
type RFC7807Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail,omitempty"`
	Instance   string                 `json:"instance,omitempty"`
	Extensions map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extensions alongside the standard RFC 7807
// fields, matching the spec's "extension members" convention.
func (p *RFC7807Problem) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extensions)+5)
	for k, v := range p.Extensions {
		out[k] = v
	}
	out["type"] = p.Type
	out["title"] = p.Title
	out["status"] = p.Status
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	return json.Marshal(out)
}

func (p *RFC7807Problem) Error() string {
	return fmt.Sprintf("%s (%d): %s", p.Title, p.Status, p.Detail)
}

const problemBaseURI = "https://argoplatform.dev/errors"

// NewValidationErrorProblem builds a 400 problem for resource, with
// the given per-field failures attached as extensions.
func NewValidationErrorProblem(resource string, fieldErrors map[string]string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemBaseURI + "/validation-error",
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   fmt.Sprintf("validation failed for %s", resource),
		Instance: "/" + resource,
		Extensions: map[string]interface{}{
			"resource":     resource,
			"field_errors": fieldErrors,
		},
	}
}

// NewNotFoundProblem builds a 404 problem for the named resource/id.
func NewNotFoundProblem(resource, id string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemBaseURI + "/not-found",
		Title:    "Resource Not Found",
		Status:   http.StatusNotFound,
		Detail:   fmt.Sprintf("%s %s not found", resource, id),
		Instance: fmt.Sprintf("/%s/%s", resource, id),
		Extensions: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictProblem builds a 409 problem reporting that field=value
// already identifies an existing resource.
func NewConflictProblem(resource, field, value string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     problemBaseURI + "/conflict",
		Title:    "Resource Conflict",
		Status:   http.StatusConflict,
		Detail:   fmt.Sprintf("%s with %s %s already exists", resource, field, value),
		Instance: "/" + resource,
		Extensions: map[string]interface{}{
			"resource": resource,
			"field":    field,
			"value":    value,
		},
	}
}

// NewInternalErrorProblem builds a 500 problem. Extensions["retry"] is
// set so clients know it's safe to retry the request as-is.
func NewInternalErrorProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:       problemBaseURI + "/internal-error",
		Title:      "Internal Server Error",
		Status:     http.StatusInternalServerError,
		Detail:     detail,
		Extensions: map[string]interface{}{"retry": true},
	}
}

// NewServiceUnavailableProblem builds a 503 problem for a downstream
// dependency outage (database, object store, LLM provider).
func NewServiceUnavailableProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:       problemBaseURI + "/service-unavailable",
		Title:      "Service Unavailable",
		Status:     http.StatusServiceUnavailable,
		Detail:     detail,
		Extensions: map[string]interface{}{"retry": true},
	}
}
