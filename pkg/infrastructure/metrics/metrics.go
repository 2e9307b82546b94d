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

// Package metrics declares the Prometheus collectors exported under
// /metrics by both services: ingestion pipeline throughput and stage
// duration, and NL-to-SQL pipeline LLM call and query outcome counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessedTotal counts every ingestion job that reaches a
	// terminal state, regardless of outcome.
	JobsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "argonaut_jobs_processed_total",
		Help: "Total number of ingestion jobs that reached a terminal state.",
	})

	// StagesExecutedTotal counts completed pipeline stage runs
	// (parse, clean, write, summarize, index) by stage name.
	StagesExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argonaut_pipeline_stages_executed_total",
		Help: "Total number of ingestion pipeline stage executions, labeled by stage.",
	}, []string{"stage"})

	// StageDuration records wall-clock time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "argonaut_pipeline_stage_duration_seconds",
		Help:    "Ingestion pipeline stage duration in seconds, labeled by stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// LLMCallDuration records latency of an NL-to-SQL LLM provider
	// call, independent of which validation attempt it belongs to.
	LLMCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "argonaut_llm_call_duration_seconds",
		Help:    "LLM provider call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// ProfilesRejectedTotal counts measurements or profiles dropped
	// by the cleaner for failing bounds or range checks, by reason.
	ProfilesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argonaut_profiles_rejected_total",
		Help: "Total number of profiles or measurements rejected during cleaning, labeled by reason.",
	}, []string{"reason"})

	// StageErrorsTotal counts pipeline stage failures by stage and
	// error classification (transient vs permanent).
	StageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argonaut_pipeline_stage_errors_total",
		Help: "Total number of ingestion pipeline stage errors, labeled by stage and error type.",
	}, []string{"stage", "error_type"})

	// LLMCallsTotal counts LLM provider calls by provider name.
	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argonaut_llm_calls_total",
		Help: "Total number of LLM provider calls, labeled by provider.",
	}, []string{"provider"})

	// LLMCallErrorsTotal counts failed LLM provider calls by
	// provider and error type.
	LLMCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argonaut_llm_call_errors_total",
		Help: "Total number of failed LLM provider calls, labeled by provider and error type.",
	}, []string{"provider", "error_type"})

	// QueryRequestsTotal counts inbound natural-language query
	// requests by final outcome ("success", "error", "rejected").
	QueryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argonaut_query_requests_total",
		Help: "Total number of natural-language query requests, labeled by outcome.",
	}, []string{"outcome"})

	// HTTPRequestDuration records every ingestion/query httpapi request
	// by route, method and status, the ingress-level counterpart to
	// StageDuration's pipeline-internal timings.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "argonaut_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds, labeled by route, method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

// RecordJob increments JobsProcessedTotal once.
func RecordJob() {
	JobsProcessedTotal.Inc()
}

// RecordStage increments StagesExecutedTotal and observes duration
// for the given pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	StagesExecutedTotal.WithLabelValues(stage).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordLLMCallDuration observes a single LLM call's latency.
func RecordLLMCallDuration(duration time.Duration) {
	LLMCallDuration.Observe(duration.Seconds())
}

// RecordRejectedProfile increments ProfilesRejectedTotal for reason.
func RecordRejectedProfile(reason string) {
	ProfilesRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordStageError increments StageErrorsTotal for stage/errorType.
func RecordStageError(stage, errorType string) {
	StageErrorsTotal.WithLabelValues(stage, errorType).Inc()
}

// RecordLLMCall increments LLMCallsTotal for provider.
func RecordLLMCall(provider string) {
	LLMCallsTotal.WithLabelValues(provider).Inc()
}

// RecordLLMCallError increments LLMCallErrorsTotal for
// provider/errorType.
func RecordLLMCallError(provider, errorType string) {
	LLMCallErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

// RecordQueryRequest increments QueryRequestsTotal for outcome.
func RecordQueryRequest(outcome string) {
	QueryRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one ingress request's duration against
// HTTPRequestDuration.
func RecordHTTPRequest(route, method, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(route, method, status).Observe(duration.Seconds())
}

// Timer measures elapsed wall-clock time and, on completion, records
// it against the appropriate pipeline histogram. It exists so call
// sites can `defer metrics.NewTimer().RecordStage("parse")` without
// threading a start time through each function by hand.
type Timer struct {
	start time.Time
}

// NewTimer starts a new Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordStage records the elapsed time against the named pipeline
// stage and increments its completion counter.
func (t *Timer) RecordStage(stage string) {
	RecordStage(stage, t.Elapsed())
}

// RecordLLMCall records the elapsed time as an LLM call duration.
func (t *Timer) RecordLLMCall() {
	RecordLLMCallDuration(t.Elapsed())
}
