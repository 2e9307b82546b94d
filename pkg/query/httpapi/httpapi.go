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

// Package httpapi is the query service's HTTP ingress: it accepts a
// natural-language question, runs it through pkg/query/nlpipeline, and
// returns either the executed result, a confirmation-required
// response, or an RFC 7807 problem document. The streaming variant
// reports the same outcome as a sequence of server-sent events instead
// of one JSON body.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/errors"
	"github.com/argoplatform/argonaut/pkg/infrastructure/metrics"
	"github.com/argoplatform/argonaut/pkg/query/nlpipeline"
	"github.com/argoplatform/argonaut/pkg/shared/apierror"
	"github.com/argoplatform/argonaut/pkg/shared/httpmiddleware"
	"github.com/argoplatform/argonaut/pkg/shared/httpresponse"
)

// Server wires the query pipeline into a chi router.
type Server struct {
	pipeline *nlpipeline.Pipeline
	log      *zap.Logger
}

// New builds a Server.
func New(pipeline *nlpipeline.Pipeline, log *zap.Logger) *Server {
	return &Server{pipeline: pipeline, log: log}
}

// Router builds the chi router exposing this service's full surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/query/stream", s.handleQueryStream)
	r.Post("/api/v1/query/benchmark", s.handleBenchmark)
	return r
}

// queryRequest is the JSON body every query endpoint accepts.
type queryRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Provider  string `json:"provider,omitempty"`
	RowCap    int    `json:"row_cap,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

// queryResponse is the JSON body returned by a synchronous /query call.
type queryResponse struct {
	SessionID       string          `json:"session_id"`
	SQL             string          `json:"sql"`
	Confidence      float64         `json:"confidence"`
	Interpretation  string          `json:"interpretation,omitempty"`
	Columns         []string        `json:"columns,omitempty"`
	Rows            [][]interface{} `json:"rows,omitempty"`
	RowCount        int             `json:"row_count,omitempty"`
	Truncated       bool            `json:"truncated,omitempty"`
	AwaitingConfirm bool            `json:"awaiting_confirmation,omitempty"`
	EstimatedRows   int64           `json:"estimated_rows,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpresponse.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}

	result, err := s.pipeline.Run(r.Context(), req.SessionID, req.Question, req.Provider, req.RowCap, req.Confirmed)
	if err != nil {
		s.recordOutcome(err)
		httpresponse.Error(w, s.log, err)
		return
	}
	metrics.RecordQueryRequest(outcomeFor(result.AwaitingConfirm))
	httpresponse.JSON(w, http.StatusOK, toResponse(result))
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}
	req.Confirmed = true // benchmark runs always execute, never gate on the row estimate

	start := time.Now()
	result, err := s.pipeline.Run(r.Context(), req.SessionID, req.Question, req.Provider, req.RowCap, req.Confirmed)
	elapsed := time.Since(start)
	if err != nil {
		s.recordOutcome(err)
		httpresponse.Error(w, s.log, err)
		return
	}
	metrics.RecordQueryRequest("success")

	resp := toResponse(result)
	httpresponse.JSON(w, http.StatusOK, struct {
		queryResponse
		ElapsedMs int64 `json:"elapsed_ms"`
	}{queryResponse: resp, ElapsedMs: elapsed.Milliseconds()})
}

// sseEvent names one stage of the streamed query lifecycle.
type sseEvent string

const (
	eventThinking    sseEvent = "thinking"
	eventInterpreting sseEvent = "interpreting"
	eventExecuting   sseEvent = "executing"
	eventResults     sseEvent = "results"
	eventAwaiting    sseEvent = "awaiting_confirmation"
	eventDone        sseEvent = "done"
	eventError       sseEvent = "error"
)

// handleQueryStream reports the same Run outcome as a sequence of
// server-sent events rather than one JSON body, so a client can render
// progress while the pipeline is still generating or executing SQL.
// The pipeline itself runs synchronously end-to-end; this handler only
// narrates fixed stage markers around the single Run call, since
// nlpipeline does not currently expose per-stage callbacks.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpresponse.Error(w, s.log, apierror.New(apierror.TypeExecutionError, "streaming not supported by this connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, flusher, eventThinking, map[string]string{"question": req.Question})

	result, err := s.pipeline.Run(r.Context(), req.SessionID, req.Question, req.Provider, req.RowCap, req.Confirmed)
	if err != nil {
		s.recordOutcome(err)
		writeEvent(w, flusher, eventError, errorPayload(err))
		return
	}

	if result.AwaitingConfirm {
		metrics.RecordQueryRequest("rejected")
		writeEvent(w, flusher, eventAwaiting, map[string]interface{}{
			"session_id":     result.SessionID,
			"sql":            result.SQL,
			"estimated_rows": result.EstimatedRows,
		})
		writeEvent(w, flusher, eventDone, nil)
		return
	}

	writeEvent(w, flusher, eventExecuting, map[string]string{"sql": result.SQL})
	writeEvent(w, flusher, eventResults, toResponse(result))
	writeEvent(w, flusher, eventInterpreting, map[string]string{"interpretation": result.Interpretation})
	metrics.RecordQueryRequest("success")
	writeEvent(w, flusher, eventDone, nil)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func errorPayload(err error) map[string]interface{} {
	if apiErr, ok := err.(*apierror.Error); ok {
		return map[string]interface{}{"error_type": string(apiErr.Type), "message": apiErr.Message}
	}
	return map[string]interface{}{"error_type": "execution_error", "message": errors.SafeErrorMessage(err)}
}

func (s *Server) recordOutcome(err error) {
	if apiErr, ok := err.(*apierror.Error); ok && apiErr.Type == apierror.TypeValidationFailure {
		metrics.RecordQueryRequest("rejected")
		return
	}
	metrics.RecordQueryRequest("error")
}

func outcomeFor(awaitingConfirm bool) string {
	if awaitingConfirm {
		return "rejected"
	}
	return "success"
}

func decodeQueryRequest(r *http.Request) (*queryRequest, error) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apierror.Newf(apierror.TypeValidationFailure, "invalid request body: %v", err)
	}
	if req.Question == "" {
		return nil, apierror.New(apierror.TypeValidationFailure, "question must not be empty")
	}
	return &req, nil
}

func toResponse(result *nlpipeline.Result) queryResponse {
	resp := queryResponse{
		SessionID:       result.SessionID,
		SQL:             result.SQL,
		Confidence:      result.Confidence,
		Interpretation:  result.Interpretation,
		AwaitingConfirm: result.AwaitingConfirm,
		EstimatedRows:   result.EstimatedRows,
	}
	if result.Query != nil {
		resp.Columns = result.Query.Columns
		resp.Rows = result.Query.Rows
		resp.RowCount = result.Query.RowCount
		resp.Truncated = result.Query.Truncated
	}
	return resp
}
