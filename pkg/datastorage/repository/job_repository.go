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

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository/sqlutil"
	"github.com/argoplatform/argonaut/pkg/shared/logging"
)

// JobRepository owns the ingestion_jobs table: the state machine the
// orchestrator drives through pending -> running -> succeeded|failed,
// and failed -> pending on admin retry.
type JobRepository struct {
	log *zap.Logger
}

// NewJobRepository builds a JobRepository.
func NewJobRepository(log *zap.Logger) *JobRepository {
	return &JobRepository{log: log}
}

// Create inserts a new job row in pending status for objectStoreKey.
func (r *JobRepository) Create(ctx context.Context, db *sql.DB, objectStoreKey string) (*models.IngestionJob, error) {
	job := &models.IngestionJob{
		ID:             uuid.New(),
		ObjectStoreKey: objectStoreKey,
		Status:         models.JobStatusPending,
	}
	const query = `
		INSERT INTO ingestion_jobs (id, object_store_key, status, progress_percent, created_at, updated_at)
		VALUES ($1, $2, $3, 0, now(), now())
		RETURNING created_at, updated_at`

	err := db.QueryRowContext(ctx, query, job.ID, job.ObjectStoreKey, job.Status).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		r.log.Error("create job failed", zap.Any("fields", logging.WorkflowFields("create", job.ID.String()).Error(err)))
		return nil, wrapWriteError(err, "job", "create")
	}
	return job, nil
}

// MarkRunning transitions a pending job to running, stamping started_at.
// It only succeeds out of pending or an admin-retried failed job, so
// the sweeper and a worker racing the same job can't both claim it.
func (r *JobRepository) MarkRunning(ctx context.Context, db *sql.DB, id uuid.UUID) error {
	const query = `
		UPDATE ingestion_jobs SET status = $2, started_at = now(), updated_at = now()
		WHERE id = $1 AND status = $3`
	result, err := db.ExecContext(ctx, query, id, models.JobStatusRunning, models.JobStatusPending)
	if err != nil {
		return wrapWriteError(err, "job", "mark_running")
	}
	return checkRowsAffected(result, "job", id.String())
}

// UpdateProgress records incremental profile counts for a running job
// without touching its status.
func (r *JobRepository) UpdateProgress(ctx context.Context, db *sql.DB, id uuid.UUID, progressPercent, profilesIngested int) error {
	const query = `
		UPDATE ingestion_jobs SET progress_percent = $2, profiles_ingested = $3, updated_at = now()
		WHERE id = $1`
	_, err := db.ExecContext(ctx, query, id, progressPercent, profilesIngested)
	return wrapWriteError(err, "job", "update_progress")
}

// MarkSucceeded transitions a running job to succeeded, attaching the
// dataset it produced.
func (r *JobRepository) MarkSucceeded(ctx context.Context, db *sql.DB, id uuid.UUID, datasetID uuid.UUID) error {
	const query = `
		UPDATE ingestion_jobs SET status = $2, dataset_id = $3, progress_percent = 100,
			finished_at = now(), updated_at = now()
		WHERE id = $1`
	_, err := db.ExecContext(ctx, query, id, models.JobStatusSucceeded, datasetID)
	return wrapWriteError(err, "job", "mark_succeeded")
}

// MarkFailed transitions a job to failed, recording errLog and
// incrementing its retry counter.
func (r *JobRepository) MarkFailed(ctx context.Context, db *sql.DB, id uuid.UUID, errLog string) error {
	const query = `
		UPDATE ingestion_jobs SET status = $2, error_log = $3, retry_count = retry_count + 1,
			finished_at = now(), updated_at = now()
		WHERE id = $1`
	_, err := db.ExecContext(ctx, query, id, models.JobStatusFailed, sqlutil.ToNullStringValue(errLog))
	return wrapWriteError(err, "job", "mark_failed")
}

// Retry transitions a failed job back to pending for a worker to pick
// up again, the one non-monotonic transition the state machine allows.
func (r *JobRepository) Retry(ctx context.Context, db *sql.DB, id uuid.UUID) error {
	const query = `
		UPDATE ingestion_jobs SET status = $2, started_at = NULL, finished_at = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`
	result, err := db.ExecContext(ctx, query, id, models.JobStatusPending, models.JobStatusFailed)
	if err != nil {
		return wrapWriteError(err, "job", "retry")
	}
	return checkRowsAffected(result, "job", id.String())
}

// GetByID fetches one job row.
func (r *JobRepository) GetByID(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.IngestionJob, error) {
	const query = `
		SELECT id, object_store_key, status, progress_percent, profiles_total, profiles_ingested,
			error_log, retry_count, dataset_id, created_at, started_at, finished_at, updated_at
		FROM ingestion_jobs WHERE id = $1`
	return r.scanJob(db.QueryRowContext(ctx, query, id), id.String())
}

// ListPending returns jobs still waiting for a worker, oldest first.
func (r *JobRepository) ListPending(ctx context.Context, db *sql.DB, limit int) ([]*models.IngestionJob, error) {
	const query = `
		SELECT id, object_store_key, status, progress_percent, profiles_total, profiles_ingested,
			error_log, retry_count, dataset_id, created_at, started_at, finished_at, updated_at
		FROM ingestion_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := db.QueryContext(ctx, query, models.JobStatusPending, limit)
	if err != nil {
		return nil, wrapReadError(err, "job", "pending")
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// ListStaleRunning returns jobs stuck in running past threshold — the
// orchestrator's sweeper resets these to pending (or fails them once
// their retry budget is spent) on the assumption their worker died.
func (r *JobRepository) ListStaleRunning(ctx context.Context, db *sql.DB, threshold time.Duration) ([]*models.IngestionJob, error) {
	const query = `
		SELECT id, object_store_key, status, progress_percent, profiles_total, profiles_ingested,
			error_log, retry_count, dataset_id, created_at, started_at, finished_at, updated_at
		FROM ingestion_jobs WHERE status = $1 AND started_at < $2`

	cutoff := time.Now().Add(-threshold)
	rows, err := db.QueryContext(ctx, query, models.JobStatusRunning, cutoff)
	if err != nil {
		return nil, wrapReadError(err, "job", "stale_running")
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// List returns jobs for the admin-facing jobs listing, newest first,
// optionally filtered to a single status. An empty status lists every
// job regardless of state.
func (r *JobRepository) List(ctx context.Context, db *sql.DB, status string, limit, offset int) ([]*models.IngestionJob, error) {
	if status == "" {
		const query = `
			SELECT id, object_store_key, status, progress_percent, profiles_total, profiles_ingested,
				error_log, retry_count, dataset_id, created_at, started_at, finished_at, updated_at
			FROM ingestion_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err := db.QueryContext(ctx, query, limit, offset)
		if err != nil {
			return nil, wrapReadError(err, "job", "list")
		}
		defer rows.Close()
		return scanJobRows(rows)
	}

	const query = `
		SELECT id, object_store_key, status, progress_percent, profiles_total, profiles_ingested,
			error_log, retry_count, dataset_id, created_at, started_at, finished_at, updated_at
		FROM ingestion_jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, wrapReadError(err, "job", "list")
	}
	defer rows.Close()
	return scanJobRows(rows)
}

func (r *JobRepository) scanJob(row *sql.Row, id string) (*models.IngestionJob, error) {
	var j models.IngestionJob
	var errLog sql.NullString
	var datasetID sql.NullString
	var started, finished sql.NullTime
	err := row.Scan(
		&j.ID, &j.ObjectStoreKey, &j.Status, &j.ProgressPercent, &j.ProfilesTotal, &j.ProfilesIngested,
		&errLog, &j.RetryCount, &datasetID, &j.CreatedAt, &started, &finished, &j.UpdatedAt,
	)
	if err != nil {
		return nil, wrapReadError(err, "job", id)
	}
	j.ErrorLog = sqlutil.FromNullString(errLog)
	j.StartedAt = sqlutil.FromNullTime(started)
	j.FinishedAt = sqlutil.FromNullTime(finished)
	if datasetID.Valid {
		parsed, err := uuid.Parse(datasetID.String)
		if err == nil {
			j.DatasetID = &parsed
		}
	}
	return &j, nil
}

func scanJobRows(rows *sql.Rows) ([]*models.IngestionJob, error) {
	var out []*models.IngestionJob
	for rows.Next() {
		var j models.IngestionJob
		var errLog sql.NullString
		var datasetID sql.NullString
		var started, finished sql.NullTime
		if err := rows.Scan(
			&j.ID, &j.ObjectStoreKey, &j.Status, &j.ProgressPercent, &j.ProfilesTotal, &j.ProfilesIngested,
			&errLog, &j.RetryCount, &datasetID, &j.CreatedAt, &started, &finished, &j.UpdatedAt,
		); err != nil {
			return nil, wrapReadError(err, "job", "list")
		}
		j.ErrorLog = sqlutil.FromNullString(errLog)
		j.StartedAt = sqlutil.FromNullTime(started)
		j.FinishedAt = sqlutil.FromNullTime(finished)
		if datasetID.Valid {
			parsed, err := uuid.Parse(datasetID.String)
			if err == nil {
				j.DatasetID = &parsed
			}
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

// checkRowsAffected returns a not-found problem when a conditional
// UPDATE matched no row, the signal that a concurrent worker already
// moved the job out of the expected state.
func checkRowsAffected(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return wrapWriteError(err, resource, "rows_affected")
	}
	if n == 0 {
		return wrapReadError(sql.ErrNoRows, resource, id)
	}
	return nil
}
