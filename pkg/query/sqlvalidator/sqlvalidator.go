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

// Package sqlvalidator rejects any LLM-generated SQL that is not
// exactly one read-only SELECT against whitelisted tables, before the
// executor ever opens a connection. Validation runs in two
// independent layers: a structural AST walk (pg_query_go, libpg_query's
// real PostgreSQL parser) and an OPA policy decision over the tables
// the walk extracted — two different technologies reaching the same
// answer so a bug in one does not become a SQL-injection bypass.
package sqlvalidator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"go.uber.org/zap"
)

// Violation names one reason a statement was rejected or flagged.
type Violation struct {
	Code    string
	Message string
}

// Report is the outcome of one Validate call. A statement with any
// Violations is not Valid; Warnings never affect Valid and exist only
// to surface in the response for the caller's awareness (e.g. a raw
// geometry cast that will serialize poorly as JSON).
type Report struct {
	Valid      bool
	Tables     []string
	Violations []Violation
	Warnings   []string
}

// policyModule is evaluated once per Validate call over the table list
// the AST walk already extracted — an independent confirmation of the
// same whitelist decision the Go-side map check makes.
const policyModule = `
package argonaut.sqlvalidator

default allow = false

allow {
	input.is_select
	count(disallowed) == 0
}

disallowed[t] {
	t := input.tables[_]
	not whitelisted[t]
}

whitelisted[t] {
	t := input.whitelist[_]
}
`

// Validator holds the table whitelist and the prepared OPA query,
// both built once at startup: the whitelist never changes at runtime,
// so there is nothing to reload and no lock to take on the hot path.
type Validator struct {
	whitelist map[string]bool
	policy    rego.PreparedEvalQuery
	log       *zap.Logger
}

// New builds a Validator. tables is the full list of tables and
// materialized views natural-language queries may read.
func New(ctx context.Context, tables []string, log *zap.Logger) (*Validator, error) {
	whitelist := make(map[string]bool, len(tables))
	for _, t := range tables {
		whitelist[strings.ToLower(t)] = true
	}

	query, err := rego.New(
		rego.Query("data.argonaut.sqlvalidator.allow"),
		rego.Module("sqlvalidator.rego", policyModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare sql validator policy: %w", err)
	}

	return &Validator{whitelist: whitelist, policy: query, log: log}, nil
}

// Validate parses sqlText with libpg_query, walks its AST for
// read-only and whitelist violations, and confirms the whitelist
// decision through OPA. It never returns an error itself: a syntax
// error is reported as a Violation, not a Go error, so the caller's
// retry-with-feedback loop always has a Report to feed back to the LLM.
func (v *Validator) Validate(ctx context.Context, sqlText string) *Report {
	report := &Report{}

	jsonAST, err := pg_query.ParseToJSON(sqlText)
	if err != nil {
		report.Violations = append(report.Violations, Violation{
			Code:    "syntax_error",
			Message: err.Error(),
		})
		return report
	}

	var root map[string]interface{}
	if err := json.Unmarshal([]byte(jsonAST), &root); err != nil {
		report.Violations = append(report.Violations, Violation{
			Code:    "syntax_error",
			Message: fmt.Sprintf("decode parse tree: %v", err),
		})
		return report
	}

	if stmts, _ := root["stmts"].([]interface{}); len(stmts) != 1 {
		report.Violations = append(report.Violations, Violation{
			Code:    "multiple_statements",
			Message: fmt.Sprintf("expected exactly one statement, found %d", len(stmts)),
		})
	}

	st := &walkState{cteNames: map[string]bool{}}
	walk(root, st)

	if st.nonSelect {
		report.Violations = append(report.Violations, Violation{
			Code:    "not_read_only",
			Message: "only a single SELECT statement is permitted",
		})
	}
	if st.intoClause {
		report.Violations = append(report.Violations, Violation{
			Code:    "not_read_only",
			Message: "SELECT ... INTO is not permitted",
		})
	}

	seen := map[string]bool{}
	for _, tbl := range st.tables {
		lower := strings.ToLower(tbl)
		if st.cteNames[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		report.Tables = append(report.Tables, tbl)
		if !v.whitelist[lower] {
			report.Violations = append(report.Violations, Violation{
				Code:    "table_not_whitelisted",
				Message: fmt.Sprintf("table %q is not part of the queryable schema", tbl),
			})
		}
	}

	if st.geometryCast {
		report.Warnings = append(report.Warnings, "statement casts a column to ::geometry; prefer ST_AsGeoJSON or ST_AsText so the result serializes as readable JSON")
	}

	if decision := v.evaluatePolicy(ctx, report.Tables, !st.nonSelect && !st.intoClause); !decision {
		report.Violations = append(report.Violations, Violation{
			Code:    "policy_denied",
			Message: "policy evaluation rejected this statement's table access",
		})
	}

	report.Valid = len(report.Violations) == 0
	return report
}

func (v *Validator) evaluatePolicy(ctx context.Context, tables []string, isSelect bool) bool {
	whitelist := make([]string, 0, len(v.whitelist))
	for t := range v.whitelist {
		whitelist = append(whitelist, t)
	}
	lowerTables := make([]string, len(tables))
	for i, t := range tables {
		lowerTables[i] = strings.ToLower(t)
	}

	results, err := v.policy.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"is_select": isSelect,
		"tables":    lowerTables,
		"whitelist": whitelist,
	}))
	if err != nil {
		v.log.Error("opa policy evaluation failed, denying by default", zap.Error(err))
		return false
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false
	}
	allowed, _ := results[0].Expressions[0].Value.(bool)
	return allowed
}

// walkState accumulates everything Validate cares about across one
// recursive descent of the parse tree.
type walkState struct {
	nonSelect    bool
	intoClause   bool
	tables       []string
	cteNames     map[string]bool
	geometryCast bool
}

// walk recurses through the generic JSON shape libpg_query emits
// (nested maps and slices with no fixed Go struct), looking for the
// handful of node-type keys Validate needs. Walking generically rather
// than against pg_query_go's generated protobuf types keeps this
// resilient to the exact oneof wrapper names in a given library
// version, at the cost of losing static typing on the node contents.
func walk(node interface{}, st *walkState) {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, val := range v {
			switch key {
			case "SelectStmt":
				if m, ok := val.(map[string]interface{}); ok {
					if _, has := m["intoClause"]; has {
						st.intoClause = true
					}
				}
			case "InsertStmt", "UpdateStmt", "DeleteStmt", "CreateStmt", "CreateTableAsStmt",
				"DropStmt", "AlterTableStmt", "TruncateStmt", "GrantStmt", "GrantRoleStmt",
				"RevokeStmt", "CreateFunctionStmt", "DoStmt", "CallStmt", "CopyStmt",
				"VacuumStmt", "IndexStmt", "ViewStmt", "CommentStmt", "SecLabelStmt",
				"VariableSetStmt", "TransactionStmt", "ExplainStmt", "RefreshMatViewStmt":
				st.nonSelect = true
			case "RangeVar":
				if m, ok := val.(map[string]interface{}); ok {
					if name, ok := m["relname"].(string); ok {
						st.tables = append(st.tables, name)
					}
				}
			case "CommonTableExpr":
				if m, ok := val.(map[string]interface{}); ok {
					if name, ok := m["ctename"].(string); ok {
						st.cteNames[strings.ToLower(name)] = true
					}
				}
			case "TypeCast":
				if isGeometryCast(val) {
					st.geometryCast = true
				}
			}
			walk(val, st)
		}
	case []interface{}:
		for _, item := range v {
			walk(item, st)
		}
	}
}

func isGeometryCast(typeCast interface{}) bool {
	m, ok := typeCast.(map[string]interface{})
	if !ok {
		return false
	}
	typeName, ok := m["typeName"].(map[string]interface{})
	if !ok {
		return false
	}
	names, ok := typeName["names"].([]interface{})
	if !ok {
		return false
	}
	for _, n := range names {
		nm, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		s, ok := nm["String"].(map[string]interface{})
		if !ok {
			continue
		}
		if str, ok := s["sval"].(string); ok && strings.EqualFold(str, "geometry") {
			return true
		}
	}
	return false
}
