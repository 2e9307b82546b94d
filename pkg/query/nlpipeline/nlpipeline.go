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

// Package nlpipeline turns one natural-language question into executed,
// row-capped SQL: it assembles a prompt from the fixed schema context,
// the session's recent history and any geographic hints, asks an LLM
// provider to generate SQL, validates the answer through
// pkg/query/sqlvalidator and retries with the violation feedback folded
// back into the prompt when it fails, estimates the result size for a
// confirmation gate, and only then executes it.
package nlpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
	"github.com/argoplatform/argonaut/pkg/ai/llm"
	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/infrastructure/metrics"
	"github.com/argoplatform/argonaut/pkg/query/contextstore"
	"github.com/argoplatform/argonaut/pkg/query/executor"
	"github.com/argoplatform/argonaut/pkg/query/geography"
	"github.com/argoplatform/argonaut/pkg/query/sqlvalidator"
	"github.com/argoplatform/argonaut/pkg/shared/apierror"
)

// schemaTemplate is the fixed description of the queryable schema handed
// to the LLM on every request. It is built once at process startup
// (see BuildSchemaPrompt) and never changes — the same process-wide
// immutable pattern pkg/query/geography follows, and the mirror image
// of pkg/argo/cleaner's BoundsWatcher, the one table in this system
// that genuinely is hot-reloaded.
const schemaTemplate = `floats(platform_number TEXT PRIMARY KEY, wmo_identifier TEXT, float_type TEXT, program TEXT)
datasets(id UUID PRIMARY KEY, name TEXT, date_range_start TIMESTAMPTZ, date_range_end TIMESTAMPTZ, float_count INT, profile_count INT, summary TEXT, is_active BOOLEAN, dataset_version INT)
profiles(id UUID PRIMARY KEY, platform_number TEXT, cycle_number INT, julian_day DOUBLE PRECISION, timestamp TIMESTAMPTZ, latitude DOUBLE PRECISION, longitude DOUBLE PRECISION, data_mode TEXT)
measurements(id UUID PRIMARY KEY, profile_id UUID, pressure DOUBLE PRECISION, temperature DOUBLE PRECISION, salinity DOUBLE PRECISION, dissolved_oxygen DOUBLE PRECISION, chlorophyll DOUBLE PRECISION, nitrate DOUBLE PRECISION, ph DOUBLE PRECISION, is_outlier BOOLEAN)
float_positions(platform_number TEXT PRIMARY KEY, latitude DOUBLE PRECISION, longitude DOUBLE PRECISION, geom GEOMETRY(Point,4326), last_profile_at TIMESTAMPTZ)
mv_float_latest_position(platform_number TEXT, latitude DOUBLE PRECISION, longitude DOUBLE PRECISION, last_profile_at TIMESTAMPTZ)
mv_dataset_stats(dataset_id UUID, float_count INT, profile_count INT, variable_list TEXT[])`

// BuildSchemaPrompt renders the fixed schema description. Callers
// should invoke this once at startup and hold the result, the same way
// pkg/query/geography.Load is called once and never rebuilt.
func BuildSchemaPrompt() string {
	return schemaTemplate
}

// DefaultWhitelist is the table set sqlvalidator and the schema prompt
// agree on. A deployment with additional read models should extend
// this, not bypass it.
var DefaultWhitelist = []string{
	"floats", "datasets", "profiles", "measurements",
	"float_positions", "mv_float_latest_position", "mv_dataset_stats",
}

// Result is the outcome of one Run call.
type Result struct {
	SessionID      string
	SQL            string
	Confidence     float64
	Interpretation string
	Query          *executor.Result
	AwaitingConfirm bool
	EstimatedRows  int64
}

// Pipeline wires one provider set, the validator, the executor and the
// session-context and geography lookups into the full NL-to-SQL flow.
type Pipeline struct {
	clients         map[string]llm.Client
	defaultProvider string
	validator       *sqlvalidator.Validator
	exec            *executor.Executor
	geo             *geography.Table
	ctxStore        *contextstore.Store
	cfg             config.QueryConfig
	schemaPrompt    string
	log             *zap.Logger
}

// New builds a Pipeline. clients must contain an entry for
// defaultProvider; Run rejects any other requested provider not present
// in the map with a configuration_error.
func New(
	clients map[string]llm.Client,
	defaultProvider string,
	validator *sqlvalidator.Validator,
	exec *executor.Executor,
	geo *geography.Table,
	ctxStore *contextstore.Store,
	cfg config.QueryConfig,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		clients:         clients,
		defaultProvider: defaultProvider,
		validator:       validator,
		exec:            exec,
		geo:             geo,
		ctxStore:        ctxStore,
		cfg:             cfg,
		schemaPrompt:    BuildSchemaPrompt(),
		log:             log,
	}
}

// Run answers one question. sessionID may be empty, in which case a
// fresh one is minted and returned on Result so the caller can thread
// follow-up questions through the same context-store entry. provider
// selects an LLM client by name; an empty string uses the configured
// default.
func (p *Pipeline) Run(ctx context.Context, sessionID, questionText, provider string, rowCap int, confirmed bool) (*Result, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if provider == "" {
		provider = p.defaultProvider
	}
	client, ok := p.clients[provider]
	if !ok {
		return nil, apierror.Newf(apierror.TypeConfigurationError, "unknown llm provider %q", provider)
	}

	history := p.ctxStore.Snippet(ctx, sessionID)
	geoHint := p.geo.Hint(questionText)
	schemaContext := p.schemaPrompt
	if geoHint != "" {
		schemaContext = schemaContext + "\n\n" + geoHint
	}

	whitelistLine := strings.Join(DefaultWhitelist, ", ")
	question := llm.Question{
		Text:                questionText,
		SchemaContext:       schemaContext,
		TableWhitelist:      whitelistLine,
		ConversationContext: history,
		RowCap:              effectiveRowCap(p.cfg, rowCap),
	}

	sqlText, confidence, _, err := p.generateValidated(ctx, client, provider, question)
	if err != nil {
		return nil, err
	}

	estimated, estErr := p.exec.EstimateRowCount(ctx, sqlText)
	if estErr != nil {
		p.log.Warn("row estimate failed, defaulting to execute", zap.Error(estErr))
		estimated = -1
	}
	if estimated >= 0 && estimated >= p.cfg.ConfirmationRowThreshold && !confirmed {
		return &Result{
			SessionID:       sessionID,
			SQL:             sqlText,
			Confidence:      confidence,
			AwaitingConfirm: true,
			EstimatedRows:   estimated,
		}, nil
	}

	timer := metrics.NewTimer()
	queryResult, err := p.exec.Execute(ctx, sqlText, question.RowCap)
	timer.RecordStage("execute")
	if err != nil {
		var timeoutErr *executor.TimeoutError
		if isTimeout(err, &timeoutErr) {
			return nil, apierror.New(apierror.TypeTimeout, timeoutErr.Error())
		}
		metrics.RecordStageError("execute", "execution_error")
		return nil, apierror.Newf(apierror.TypeExecutionError, "execute query: %v", err)
	}

	interpretation := p.interpret(ctx, client, questionText, queryResult)

	rowCount := queryResult.RowCount
	turn := models.ConversationTurn{Text: questionText, SQL: &sqlText, RowCount: &rowCount, Timestamp: time.Now()}
	p.ctxStore.Append(ctx, sessionID, turn)

	return &Result{
		SessionID:      sessionID,
		SQL:            sqlText,
		Confidence:     confidence,
		Interpretation: interpretation,
		Query:          queryResult,
		EstimatedRows:  estimated,
	}, nil
}

// generateValidated asks client for SQL and retries, feeding each
// failed attempt's violations back into the prompt, until either a
// statement validates or cfg.MaxValidationAttempts is exhausted.
func (p *Pipeline) generateValidated(ctx context.Context, client llm.Client, provider string, question llm.Question) (string, float64, *sqlvalidator.Report, error) {
	maxAttempts := p.cfg.MaxValidationAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	basePrompt := client.GeneratePrompt(question)
	prompt := basePrompt
	var lastReport *sqlvalidator.Report

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		timer := metrics.NewTimer()
		response, err := client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.ChatOptions{})
		timer.RecordLLMCall()
		metrics.RecordLLMCall(provider)
		if err != nil {
			metrics.RecordLLMCallError(provider, "generation_failure")
			return "", 0, nil, apierror.Newf(apierror.TypeGenerationFailure, "llm generation failed: %v", err)
		}

		sqlText, confidence, extractErr := extractSQL(response)
		if extractErr != nil {
			lastReport = &sqlvalidator.Report{Violations: []sqlvalidator.Violation{{Code: "no_sql_found", Message: extractErr.Error()}}}
			prompt = appendFeedback(basePrompt, lastReport)
			continue
		}

		report := p.validator.Validate(ctx, sqlText)
		if report.Valid {
			return sqlText, confidence, report, nil
		}
		lastReport = report
		prompt = appendFeedback(basePrompt, report)
	}

	return "", 0, nil, apierror.WithDetails(
		apierror.TypeValidationFailure,
		fmt.Sprintf("no valid SQL generated after %d attempts", maxAttempts),
		lastReport,
	)
}

// interpret asks the model for a one-line plain-English summary of the
// result set. Any failure falls back to a deterministic description,
// the same degrade-never-fail posture pkg/ingestion/summarizer takes.
func (p *Pipeline) interpret(ctx context.Context, client llm.Client, question string, result *executor.Result) string {
	if result.RowCount == 0 {
		return "The query returned no matching rows."
	}
	prompt := fmt.Sprintf(
		"In one sentence, describe this query result in plain English for a marine scientist.\nQuestion: %s\nColumns: %s\nRow count: %d",
		question, strings.Join(result.Columns, ", "), result.RowCount,
	)
	response, err := client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.ChatOptions{MaxTokens: 200})
	if err != nil {
		p.log.Warn("interpretation generation failed, using deterministic fallback", zap.Error(err))
		return fmt.Sprintf("Returned %d row(s) across %d column(s).", result.RowCount, len(result.Columns))
	}
	return strings.TrimSpace(response)
}

func effectiveRowCap(cfg config.QueryConfig, requested int) int {
	if requested <= 0 || requested > cfg.AbsoluteRowCap {
		return cfg.DefaultRowCap
	}
	return requested
}

func appendFeedback(basePrompt string, report *sqlvalidator.Report) string {
	if report == nil || len(report.Violations) == 0 {
		return basePrompt
	}
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nYour previous answer was rejected for the following reasons — correct them and answer again with a single SELECT statement:\n")
	for _, v := range report.Violations {
		fmt.Fprintf(&b, "- [%s] %s\n", v.Code, v.Message)
	}
	return b.String()
}

func isTimeout(err error, target **executor.TimeoutError) bool {
	te, ok := err.(*executor.TimeoutError)
	if ok {
		*target = te
		return true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return isTimeout(u.Unwrap(), target)
	}
	return false
}
