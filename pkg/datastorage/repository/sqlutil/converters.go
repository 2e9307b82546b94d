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

// Package sqlutil converts between Go pointer/zero-value types and
// database/sql's Null* wrapper types, so every repository in this
// module writes the same null-handling code exactly once.
package sqlutil

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ToNullString converts a *string to sql.NullString, treating both a
// nil pointer and an empty string as NULL.
func ToNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ToNullStringValue is ToNullString for a plain (non-pointer) string.
func ToNullStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullUUID converts a *uuid.UUID to sql.NullString (UUID columns are
// bound as strings so a single null-handling path covers both string
// and UUID fields).
func ToNullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// ToNullTime converts a *time.Time to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullInt64 converts a *int64 to sql.NullInt64.
func ToNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// FromNullString converts sql.NullString back to a *string, nil when
// not valid.
func FromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

// FromNullTime converts sql.NullTime back to a *time.Time, nil when
// not valid.
func FromNullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

// FromNullInt64 converts sql.NullInt64 back to a *int64, nil when not
// valid.
func FromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}
