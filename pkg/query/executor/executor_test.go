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

package executor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
)

func TestExecutor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Executor Suite")
}

var _ = Describe("Executor", func() {
	var (
		exec   *Executor
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		ctx    context.Context
		cfg    config.QueryConfig
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New()
		Expect(err).ToNot(HaveOccurred())

		cfg = config.QueryConfig{
			DefaultRowCap:    10,
			AbsoluteRowCap:   1000,
			StatementTimeout: 5 * time.Second,
		}
		exec = New(mockDB, cfg, zap.NewNop())
		ctx = context.Background()
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("Execute", func() {
		It("wraps the query with a row cap and returns columns and rows", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT \\* FROM \\(SELECT platform_number FROM floats\\) AS _argonaut_query LIMIT 11").
				WillReturnRows(sqlmock.NewRows([]string{"platform_number"}).AddRow("5904471").AddRow("5904472"))
			mock.ExpectCommit()

			result, err := exec.Execute(ctx, "SELECT platform_number FROM floats", 10)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Columns).To(Equal([]string{"platform_number"}))
			Expect(result.RowCount).To(Equal(2))
			Expect(result.Truncated).To(BeFalse())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("marks the result truncated when more rows than the cap come back", func() {
			rowCap := 2
			cfg.DefaultRowCap = rowCap
			exec = New(mockDB, cfg, zap.NewNop())

			mock.ExpectBegin()
			mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("LIMIT 3").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2").AddRow("3"))
			mock.ExpectCommit()

			result, err := exec.Execute(ctx, "SELECT id FROM floats", 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.RowCount).To(Equal(rowCap))
			Expect(result.Truncated).To(BeTrue())
		})

		It("classifies a statement-timeout cancellation distinctly", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("LIMIT").WillReturnError(errors.New("pq: canceling statement due to statement timeout"))
			mock.ExpectRollback()

			_, err := exec.Execute(ctx, "SELECT * FROM measurements", 10)

			Expect(err).To(HaveOccurred())
			var timeoutErr *TimeoutError
			Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		})

		It("falls back to the default row cap when the requested cap exceeds the absolute cap", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("LIMIT 11").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))
			mock.ExpectCommit()

			_, err := exec.Execute(ctx, "SELECT id FROM floats", 999999)

			Expect(err).ToNot(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("EstimateRowCount", func() {
		It("parses the planner's row estimate from EXPLAIN JSON output", func() {
			planJSON := `[{"Plan": {"Node Type": "Seq Scan", "Plan Rows": 4200}}]`
			mock.ExpectQuery("EXPLAIN \\(FORMAT JSON\\)").
				WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow(planJSON))

			rows, err := exec.EstimateRowCount(ctx, "SELECT * FROM measurements")

			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(Equal(int64(4200)))
		})

		It("returns an error when EXPLAIN itself fails", func() {
			mock.ExpectQuery("EXPLAIN \\(FORMAT JSON\\)").WillReturnError(errors.New("syntax error"))

			_, err := exec.EstimateRowCount(ctx, "SELECT * FROM measurements")

			Expect(err).To(HaveOccurred())
		})
	})
})
