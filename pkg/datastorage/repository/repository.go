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

// Package repository holds one struct per aggregate root (Float,
// Dataset, Profile, Measurement, FloatPosition, IngestionJob,
// OceanRegion, embeddings), each a thin wrapper over a *sql.DB handed
// the single *sql.Tx the orchestrator opened for the job currently in
// flight. Every write method maps Postgres constraint violations to
// validation.RFC7807Problem so handlers never see a raw driver error.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/argoplatform/argonaut/pkg/datastorage/validation"
)

// postgres error codes this package maps to RFC 7807 problems. See
// https://www.postgresql.org/docs/current/errcodes-appendix.html.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeCheckViolation      = "23514"
)

// wrapWriteError maps a write failure on resource to an RFC7807Problem
// when it's a recognized constraint violation, otherwise to a generic
// internal-error problem naming op for diagnostics.
func wrapWriteError(err error, resource, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeUniqueViolation:
			return validation.NewConflictProblem(resource, pgErr.ConstraintName, "")
		case pgCodeForeignKeyViolation, pgCodeCheckViolation:
			return validation.NewValidationErrorProblem(resource, map[string]string{
				pgErr.ConstraintName: pgErr.Message,
			})
		}
	}
	return validation.NewInternalErrorProblem(fmt.Sprintf("%s %s: %v", resource, op, err))
}

// wrapReadError maps sql.ErrNoRows to a not-found problem, leaving
// anything else as a generic internal error.
func wrapReadError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return validation.NewNotFoundProblem(resource, id)
	}
	return validation.NewInternalErrorProblem(fmt.Sprintf("%s %s: %v", resource, id, err))
}
