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

package sqlvalidator

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(context.Background(), []string{"profiles", "measurements", "float_positions", "mv_dataset_stats"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return v
}

func hasViolation(report *Report, code string) bool {
	for _, v := range report.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func TestValidateAcceptsWhitelistedSelect(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), "SELECT platform_number, latitude, longitude FROM float_positions LIMIT 100")
	if !report.Valid {
		t.Fatalf("expected valid report, got violations: %+v", report.Violations)
	}
	if len(report.Tables) != 1 || report.Tables[0] != "float_positions" {
		t.Errorf("expected [float_positions], got %v", report.Tables)
	}
}

func TestValidateRejectsSyntaxError(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), "SELEKT * FROM profiles")
	if report.Valid {
		t.Fatal("expected invalid report for malformed SQL")
	}
	if !hasViolation(report, "syntax_error") {
		t.Errorf("expected syntax_error violation, got %+v", report.Violations)
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), "DELETE FROM profiles WHERE id = '00000000-0000-0000-0000-000000000000'")
	if report.Valid {
		t.Fatal("expected invalid report for DELETE")
	}
	if !hasViolation(report, "not_read_only") {
		t.Errorf("expected not_read_only violation, got %+v", report.Violations)
	}
}

func TestValidateRejectsUnwhitelistedTable(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), "SELECT * FROM pg_shadow")
	if report.Valid {
		t.Fatal("expected invalid report for unwhitelisted table")
	}
	if !hasViolation(report, "table_not_whitelisted") {
		t.Errorf("expected table_not_whitelisted violation, got %+v", report.Violations)
	}
}

func TestValidateAllowsCTEAgainstWhitelistedTables(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), `
		WITH recent AS (SELECT * FROM profiles WHERE timestamp > now() - interval '7 days')
		SELECT * FROM recent LIMIT 50
	`)
	if !report.Valid {
		t.Fatalf("expected valid report for CTE query, got violations: %+v", report.Violations)
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), "SELECT * FROM profiles; SELECT * FROM measurements")
	if report.Valid {
		t.Fatal("expected invalid report for multiple statements")
	}
	if !hasViolation(report, "multiple_statements") {
		t.Errorf("expected multiple_statements violation, got %+v", report.Violations)
	}
}

func TestValidateWarnsOnGeometryCast(t *testing.T) {
	v := newTestValidator(t)
	report := v.Validate(context.Background(), "SELECT geom::geometry FROM float_positions")
	if len(report.Warnings) == 0 {
		t.Error("expected a geometry cast warning")
	}
}
