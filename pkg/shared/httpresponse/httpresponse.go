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

// Package httpresponse gives the query and ingestion httpapi packages
// one place to write a JSON body or an RFC 7807 problem document, so
// every handler in both services serializes errors identically instead
// of each reimplementing w.Header/WriteHeader/json.Marshal.
package httpresponse

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/errors"
	"github.com/argoplatform/argonaut/pkg/datastorage/validation"
	"github.com/argoplatform/argonaut/pkg/shared/apierror"
)

// JSON writes v as a 200-class JSON body with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Problem writes an RFC7807Problem as application/problem+json.
func Problem(w http.ResponseWriter, p *validation.RFC7807Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Error renders err as the right problem+json document regardless of
// which of this module's error types produced it: an *apierror.Error
// renders through ToRFC7807, a *validation.RFC7807Problem is written
// as-is, an *errors.AppError is translated via its own status-code
// mapping, and anything else is logged and reported as an opaque 500
// rather than leaking an internal error string to the caller.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	switch e := err.(type) {
	case *apierror.Error:
		Problem(w, e.ToRFC7807())
	case *validation.RFC7807Problem:
		Problem(w, e)
	case *errors.AppError:
		problem := validation.NewInternalErrorProblem(errors.SafeErrorMessage(e))
		problem.Status = errors.GetStatusCode(e)
		problem.Extensions["error_type"] = string(e.Type)
		Problem(w, problem)
	default:
		log.Error("unhandled httpapi error", zap.Error(err))
		Problem(w, validation.NewInternalErrorProblem("an internal error occurred"))
	}
}
