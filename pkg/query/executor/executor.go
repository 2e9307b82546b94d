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

// Package executor runs validator-approved SQL against the read-only
// pool inside a throwaway read-only transaction, so a per-query
// statement_timeout set with SET LOCAL never leaks onto the next
// query to reuse that pooled connection.
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
)

// Result is one executed query's output, row-capped and annotated with
// whether the cap actually truncated anything.
type Result struct {
	Columns         []string
	Rows            [][]interface{}
	RowCount        int
	Truncated       bool
	ExecutionTimeMs int64
}

// TimeoutError marks a query that was cancelled by Postgres's
// statement_timeout, distinct from every other execution failure so
// the query httpapi can report it as its own error_type.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query exceeded statement timeout: %v", e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// Executor runs SQL against db, which must be a connection pool bound
// to a read-only database role — spec.md §5 makes the role privilege,
// not this package, the actual enforcement boundary.
type Executor struct {
	db  *sql.DB
	cfg config.QueryConfig
	log *zap.Logger
}

// New builds an Executor.
func New(db *sql.DB, cfg config.QueryConfig, log *zap.Logger) *Executor {
	return &Executor{db: db, cfg: cfg, log: log}
}

// Execute wraps validatedSQL in a LIMIT-bounded outer SELECT and runs
// it inside a read-only transaction with a session-local statement
// timeout. rowCap of zero or more than AbsoluteRowCap falls back to
// DefaultRowCap. validatedSQL must already have passed
// pkg/query/sqlvalidator — Execute trusts it completely and performs
// no SQL-shape checks of its own.
func (e *Executor) Execute(ctx context.Context, validatedSQL string, rowCap int) (*Result, error) {
	if rowCap <= 0 || rowCap > e.cfg.AbsoluteRowCap {
		rowCap = e.cfg.DefaultRowCap
	}
	start := time.Now()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire read-only connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	timeoutMs := e.cfg.StatementTimeout.Milliseconds()
	if timeoutMs <= 0 {
		timeoutMs = 30_000
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMs)); err != nil {
		return nil, fmt.Errorf("set statement timeout: %w", err)
	}

	trimmed := strings.TrimRight(strings.TrimSpace(validatedSQL), ";")
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _argonaut_query LIMIT %d", trimmed, rowCap+1)

	rows, err := tx.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	var out [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, normalizeRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExecError(err)
	}

	truncated := false
	if len(out) > rowCap {
		out = out[:rowCap]
		truncated = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read-only transaction: %w", err)
	}

	return &Result{
		Columns:         columns,
		Rows:            out,
		RowCount:        len(out),
		Truncated:       truncated,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// EstimateRowCount asks the planner how many rows validatedSQL is
// expected to return, without executing it, for the confirmation gate
// ahead of a potentially very large result set. The estimate is a
// planner heuristic, not a guarantee — callers should treat a failure
// to estimate as "unknown," not "zero."
func (e *Executor) EstimateRowCount(ctx context.Context, validatedSQL string) (int64, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(validatedSQL), ";")
	query := fmt.Sprintf("EXPLAIN (FORMAT JSON) SELECT * FROM (%s) AS _argonaut_estimate", trimmed)

	var planJSON string
	if err := e.db.QueryRowContext(ctx, query).Scan(&planJSON); err != nil {
		return 0, fmt.Errorf("explain query: %w", err)
	}

	var plan []struct {
		Plan struct {
			PlanRows float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return 0, fmt.Errorf("parse explain output: %w", err)
	}
	if len(plan) == 0 {
		return 0, fmt.Errorf("explain output contained no plan")
	}
	return int64(plan[0].Plan.PlanRows), nil
}

// classifyExecError distinguishes a statement-timeout cancellation
// from every other database error, by matching the message Postgres
// sends for error code 57014 (query_canceled).
func classifyExecError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "statement timeout") {
		return &TimeoutError{Cause: err}
	}
	return fmt.Errorf("execute query: %w", err)
}

// normalizeRow converts []byte scan results (the generic database/sql
// representation for most textual and numeric wire formats this
// driver returns) to string, so callers can marshal a row straight to
// JSON without type-switching on driver-specific byte slices.
func normalizeRow(vals []interface{}) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			out[i] = string(b)
			continue
		}
		out[i] = v
	}
	return out
}
