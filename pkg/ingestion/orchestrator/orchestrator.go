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

// Package orchestrator drives one ingestion job from object-store bytes
// to a committed dataset: fetch -> parse -> clean -> write, all inside
// one transaction per attempt, with bounded retry/backoff for transient
// failures and immediate termination for permanent ones. A stale-job
// sweeper reclaims jobs whose worker died mid-run.
package orchestrator

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
	"github.com/argoplatform/argonaut/pkg/argo/cleaner"
	"github.com/argoplatform/argonaut/pkg/argo/parser"
	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository"
	"github.com/argoplatform/argonaut/pkg/infrastructure/metrics"
	"github.com/argoplatform/argonaut/pkg/ingestion/broker"
	"github.com/argoplatform/argonaut/pkg/ingestion/indexer"
	"github.com/argoplatform/argonaut/pkg/ingestion/objectstore"
	"github.com/argoplatform/argonaut/pkg/ingestion/summarizer"
	"github.com/argoplatform/argonaut/pkg/ingestion/writer"
)

// Orchestrator wires the ingestion pipeline's collaborators together
// and owns the job state machine. Every field is safe for concurrent
// use by multiple worker goroutines processing different jobs.
type Orchestrator struct {
	cfg     config.OrchestratorConfig
	writeDB *sql.DB

	jobs   *repository.JobRepository
	writer *writer.Writer
	sum    *summarizer.Summarizer
	idx    *indexer.Indexer
	store  *objectstore.Store
	broker *broker.Broker
	bounds *cleaner.BoundsWatcher

	log *zap.Logger
}

// New builds an Orchestrator. writeDB is the same *sql.DB the
// repository layer is written against (internal/database.Pools.WriteDB).
func New(
	cfg config.OrchestratorConfig,
	writeDB *sql.DB,
	store *objectstore.Store,
	brk *broker.Broker,
	sum *summarizer.Summarizer,
	idx *indexer.Indexer,
	bounds *cleaner.BoundsWatcher,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		writeDB: writeDB,
		jobs:    repository.NewJobRepository(log),
		writer:  writer.New(log),
		sum:     sum,
		idx:     idx,
		store:   store,
		broker:  brk,
		bounds:  bounds,
		log:     log,
	}
}

// pipelineResult is everything a successful runAttempt produces, for
// the fire-and-forget post-ingest indexing step to consume.
type pipelineResult struct {
	dataset     *models.Dataset
	header      parser.FloatHeader
	stats       summarizer.Stats
	summaryText string
	lastLat     float64
	lastLon     float64
	hasPosition bool
}

// HandleJobMessage is the broker.Subscribe handler. It always returns
// nil: the full bounded retry sequence runs synchronously inside one
// invocation so the job's ingestion_jobs row, not JetStream redelivery
// timing, is the source of truth for retry/backoff — the exact
// 10s/30s/90s intervals spec.md names would not otherwise be
// reproducible from a broker's own redelivery policy.
func (o *Orchestrator) HandleJobMessage(ctx context.Context, msg broker.JobMessage) error {
	o.run(ctx, msg.JobID, msg.ObjectStoreKey)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, jobID uuid.UUID, objectStoreKey string) {
	backoff := o.cfg.InitialBackoff
	maxAttempts := o.cfg.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(float64(backoff) * o.cfg.BackoffMultiplier)

			if err := o.jobs.Retry(ctx, o.writeDB, jobID); err != nil {
				o.log.Error("requeue failed job for retry attempt failed", zap.String("job_id", jobID.String()), zap.Error(err))
				return
			}
		}

		if err := o.jobs.MarkRunning(ctx, o.writeDB, jobID); err != nil {
			o.log.Error("mark job running failed", zap.String("job_id", jobID.String()), zap.Error(err))
			return
		}

		result, runErr := o.runAttempt(ctx, jobID, objectStoreKey)
		if runErr == nil {
			if err := o.jobs.MarkSucceeded(ctx, o.writeDB, jobID, result.dataset.ID); err != nil {
				o.log.Error("mark job succeeded failed", zap.String("job_id", jobID.String()), zap.Error(err))
				return
			}
			metrics.RecordJob()
			o.log.Info("ingestion job succeeded", zap.String("job_id", jobID.String()), zap.String("dataset_id", result.dataset.ID.String()), zap.Int("attempt", attempt))
			go o.postIngest(result)
			return
		}

		permanent := isPermanent(runErr)
		if err := o.jobs.MarkFailed(ctx, o.writeDB, jobID, runErr.Error()); err != nil {
			o.log.Error("mark job failed failed", zap.String("job_id", jobID.String()), zap.Error(err))
		}

		if permanent {
			metrics.RecordJob()
			metrics.RecordStageError("ingest", "permanent")
			o.log.Warn("ingestion job failed permanently", zap.String("job_id", jobID.String()), zap.Error(runErr))
			return
		}

		if attempt == maxAttempts {
			metrics.RecordJob()
			metrics.RecordStageError("ingest", "retries_exhausted")
			o.log.Error("ingestion job exhausted retry budget", zap.String("job_id", jobID.String()), zap.Int("attempts", attempt), zap.Error(runErr))
			return
		}

		metrics.RecordStageError("ingest", "transient")
		o.log.Warn("ingestion job attempt failed, will retry", zap.String("job_id", jobID.String()), zap.Int("attempt", attempt), zap.Duration("next_backoff", backoff), zap.Error(runErr))
	}
}

// runAttempt runs one full fetch/parse/clean/write pass inside a
// single transaction. Any error returned here rolls back every row the
// attempt produced; a retry always starts from the pristine staged
// bytes, never from partially-written state.
func (o *Orchestrator) runAttempt(ctx context.Context, jobID uuid.UUID, objectStoreKey string) (*pipelineResult, error) {
	fetchTimer := metrics.NewTimer()
	data, err := o.store.Fetch(ctx, objectStoreKey)
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", objectStoreKey, err)
	}
	fetchTimer.RecordStage("fetch")

	parseTimer := metrics.NewTimer()
	parsed, err := parser.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err // classified permanent by isPermanent: *parser.{MissingVariableError,UnsupportedFileError,MalformedFileError}
	}
	parseTimer.RecordStage("parse")

	tx, err := o.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	datasetName := parsed.Float.PlatformNumber
	version, err := o.writer.NextDatasetVersion(ctx, o.writeDB, datasetName)
	if err != nil {
		return nil, fmt.Errorf("next dataset version: %w", err)
	}

	datasetRow := &models.Dataset{
		ID:             uuid.New(),
		Name:           datasetName,
		SourceFilename: filepath.Base(objectStoreKey),
		ObjectStoreKey: objectStoreKey,
		IngestedAt:     time.Now().UTC(),
		DatasetVersion: version,
		IsActive:       true,
	}
	dataset, err := o.writer.WriteDataset(ctx, tx, datasetRow)
	if err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}

	cleanTimer := metrics.NewTimer()
	var variables []string
	var lastLat, lastLon float64
	var hasPosition bool
	cleaned := make([]writer.CleanedProfile, 0, len(parsed.Profiles))
	bounds := o.bounds.Bounds()
	for _, p := range parsed.Profiles {
		measurements, flagged := cleaner.Clean(bounds, p.Measurements)
		if flagged.Total > 0 {
			metrics.RecordRejectedProfile("outlier_range")
		}
		cleaned = append(cleaned, writer.CleanedProfile{Record: p, Measurements: measurements})
		if !p.PositionInvalid {
			lastLat, lastLon, hasPosition = p.Latitude, p.Longitude, true
		}
	}
	variables = measuredVariables(parsed.Profiles)
	cleanTimer.RecordStage("clean")

	writeTimer := metrics.NewTimer()
	written, err := o.writer.WriteParseResult(ctx, tx, parsed.Float, dataset.ID, cleaned, o.cfg.MeasurementBatchSize)
	if err != nil {
		return nil, fmt.Errorf("write parse result: %w", err)
	}
	writeTimer.RecordStage("write")

	if err := o.jobs.UpdateProgress(ctx, o.writeDB, jobID, 90, written); err != nil {
		o.log.Warn("update job progress failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}

	stats := summarizer.Compute(parsed.Profiles, 1, variables)
	summaryText := o.sum.Summarize(ctx, datasetName, stats)

	dataset.DateRangeStart = stats.DateRangeStart
	dataset.DateRangeEnd = stats.DateRangeEnd
	dataset.FloatCount = stats.FloatCount
	dataset.ProfileCount = stats.ProfileCount
	dataset.VariableList = stats.Variables
	if stats.BoundingPolygon != "" {
		bp := stats.BoundingPolygon
		dataset.BoundingPolygon = &bp
	}
	summary := summaryText
	dataset.Summary = &summary

	if err := o.writer.UpdateDatasetSummary(ctx, tx, dataset); err != nil {
		return nil, fmt.Errorf("update dataset summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ingestion transaction: %w", err)
	}

	return &pipelineResult{
		dataset:     dataset,
		header:      parsed.Float,
		stats:       stats,
		summaryText: summaryText,
		lastLat:     lastLat,
		lastLon:     lastLon,
		hasPosition: hasPosition,
	}, nil
}

// postIngest embeds and indexes the just-committed dataset and its
// float, then refreshes the map/browse materialized views. It runs in
// its own goroutine and its own background context: by the time it
// starts, the job is already marked succeeded, so nothing it does can
// turn a successful ingest into a failed one.
func (o *Orchestrator) postIngest(r *pipelineResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	region := ""
	if r.hasPosition {
		region = o.idx.ReverseRegion(ctx, o.writeDB, r.lastLat, r.lastLon)
	}

	datasetDescriptor := indexer.DatasetDescriptor(r.summaryText, r.dataset.Name, r.stats.Variables, formatDate(r.stats.DateRangeStart), formatDate(r.stats.DateRangeEnd), r.stats.FloatCount)
	if err := o.idx.IndexDataset(ctx, o.writeDB, r.dataset.ID, datasetDescriptor); err != nil {
		o.log.Warn("post-ingest dataset indexing failed", zap.String("dataset_id", r.dataset.ID.String()), zap.Error(err))
	}

	floatText := fmt.Sprintf("float %s (%s, %s) region=%s", r.header.PlatformNumber, r.header.FloatType, r.header.Program, region)
	o.idx.IndexFloats(ctx, o.writeDB, []indexer.FloatDescriptor{{PlatformNumber: r.header.PlatformNumber, Text: floatText}})

	if err := o.idx.RefreshViews(ctx, o.writeDB); err != nil {
		o.log.Warn("post-ingest materialized view refresh failed", zap.String("dataset_id", r.dataset.ID.String()), zap.Error(err))
	}

	if o.broker != nil {
		if err := o.broker.PublishIndexEvent(ctx, broker.IndexMessage{DatasetID: r.dataset.ID}); err != nil {
			o.log.Warn("publish index event failed", zap.String("dataset_id", r.dataset.ID.String()), zap.Error(err))
		}
	}
}

// RunSweeper polls for jobs stuck in running past StaleRunningThreshold
// — the sign their worker process died mid-attempt — and either
// requeues them for another worker or fails them once their retry
// budget is spent. It blocks until ctx is cancelled.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOnce(ctx)
		}
	}
}

func (o *Orchestrator) sweepOnce(ctx context.Context) {
	stale, err := o.jobs.ListStaleRunning(ctx, o.writeDB, o.cfg.StaleRunningThreshold)
	if err != nil {
		o.log.Error("list stale running jobs failed", zap.Error(err))
		return
	}

	for _, job := range stale {
		if job.RetryCount >= o.cfg.MaxRetries {
			if err := o.jobs.MarkFailed(ctx, o.writeDB, job.ID, "stale running job exceeded retry budget"); err != nil {
				o.log.Error("sweeper mark failed failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			}
			continue
		}

		// MarkFailed+Retry walks the job back to pending through the
		// same failed state every other retry path uses, so the
		// retry_count bookkeeping stays consistent regardless of who
		// noticed the failure.
		if err := o.jobs.MarkFailed(ctx, o.writeDB, job.ID, "stale running job reclaimed by sweeper"); err != nil {
			o.log.Error("sweeper mark failed failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		if err := o.jobs.Retry(ctx, o.writeDB, job.ID); err != nil {
			o.log.Error("sweeper requeue failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		if o.broker != nil {
			if err := o.broker.DispatchJob(ctx, broker.JobMessage{JobID: job.ID, ObjectStoreKey: job.ObjectStoreKey}); err != nil {
				o.log.Error("sweeper redispatch failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			}
		}
		o.log.Info("sweeper reclaimed stale running job", zap.String("job_id", job.ID.String()))
	}
}

// isPermanent reports whether err is one of the parser's three
// terminal validation errors, the only class of failure that must not
// be retried: re-fetching and re-parsing identical bytes always
// reproduces the same structural problem.
func isPermanent(err error) bool {
	var missing *parser.MissingVariableError
	var unsupported *parser.UnsupportedFileError
	var malformed *parser.MalformedFileError
	if errors.As(err, &missing) {
		return true
	}
	if errors.As(err, &unsupported) {
		return true
	}
	if errors.As(err, &malformed) {
		return true
	}
	return false
}

// measuredVariables names every variable with at least one non-nil
// value across profiles, for the dataset summary's variable list.
func measuredVariables(profiles []parser.ProfileRecord) []string {
	present := map[string]bool{}
	for _, p := range profiles {
		for _, m := range p.Measurements {
			markPresent(present, "temperature", m.Temperature)
			markPresent(present, "salinity", m.Salinity)
			markPresent(present, "pressure", m.Pressure)
			markPresent(present, "dissolved_oxygen", m.DissolvedOxygen)
			markPresent(present, "chlorophyll", m.Chlorophyll)
			markPresent(present, "nitrate", m.Nitrate)
			markPresent(present, "ph", m.PH)
			markPresent(present, "backscatter", m.Backscatter)
			markPresent(present, "irradiance", m.Irradiance)
		}
	}
	out := make([]string, 0, len(present))
	for v := range present {
		out = append(out, v)
	}
	return out
}

func markPresent(present map[string]bool, name string, v *float64) {
	if v != nil {
		present[name] = true
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format("2006-01-02")
}
