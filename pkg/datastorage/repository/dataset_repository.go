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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository/sqlutil"
	"github.com/argoplatform/argonaut/pkg/shared/logging"
)

// DatasetRepository owns the datasets table: one row per ingested
// file, versioned per logical dataset name.
type DatasetRepository struct {
	log *zap.Logger
}

// NewDatasetRepository builds a DatasetRepository.
func NewDatasetRepository(log *zap.Logger) *DatasetRepository {
	return &DatasetRepository{log: log}
}

// NextVersion returns the version number a new row for name should
// carry: one past the highest dataset_version seen so far, or 1 if
// this is the first ingestion of this logical dataset.
//
// TODO: this only covers the single-active-version case described in
// SPEC_FULL §3; the broader dataset-management/retention story (pruning
// old versions, cross-version diffing) is out of scope here.
func (r *DatasetRepository) NextVersion(ctx context.Context, db *sql.DB, name string) (int, error) {
	const query = `SELECT COALESCE(MAX(dataset_version), 0) FROM datasets WHERE name = $1`
	var maxVersion int
	if err := db.QueryRowContext(ctx, query, name).Scan(&maxVersion); err != nil {
		return 0, wrapReadError(err, "dataset", name)
	}
	return maxVersion + 1, nil
}

// Create inserts a new dataset row within tx. The orchestrator calls
// this before any profile/measurement rows are written so every
// subsequent write in the job's transaction can reference d.ID.
func (r *DatasetRepository) Create(ctx context.Context, tx *sql.Tx, d *models.Dataset) (*models.Dataset, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	const query = `
		INSERT INTO datasets (id, name, source_filename, object_store_key, ingested_at,
			is_active, dataset_version)
		VALUES ($1, $2, $3, $4, now(), $5, $6)
		RETURNING ingested_at`

	err := tx.QueryRowContext(ctx, query,
		d.ID, d.Name, d.SourceFilename, d.ObjectStoreKey, d.IsActive, d.DatasetVersion,
	).Scan(&d.IngestedAt)
	if err != nil {
		r.log.Error("create dataset failed", zap.Any("fields", logging.DatabaseFields("create", "datasets").Error(err)))
		return nil, wrapWriteError(err, "dataset", "create")
	}
	return d, nil
}

// UpdateSummary records the metadata summarizer's output once the
// pipeline's write stage finishes counting floats and profiles.
func (r *DatasetRepository) UpdateSummary(ctx context.Context, tx *sql.Tx, d *models.Dataset) error {
	const query = `
		UPDATE datasets SET
			date_range_start = $2, date_range_end = $3, bounding_polygon = $4,
			float_count = $5, profile_count = $6, summary = $7
		WHERE id = $1`

	_, err := tx.ExecContext(ctx, query,
		d.ID, sqlutil.ToNullTime(d.DateRangeStart), sqlutil.ToNullTime(d.DateRangeEnd),
		sqlutil.ToNullString(d.BoundingPolygon), d.FloatCount, d.ProfileCount,
		sqlutil.ToNullString(d.Summary),
	)
	return wrapWriteError(err, "dataset", "update_summary")
}

// SetActive toggles is_active, used when a re-ingestion supersedes an
// earlier version of the same logical dataset.
func (r *DatasetRepository) SetActive(ctx context.Context, db *sql.DB, id uuid.UUID, active bool) error {
	const query = `UPDATE datasets SET is_active = $2 WHERE id = $1`
	_, err := db.ExecContext(ctx, query, id, active)
	return wrapWriteError(err, "dataset", "set_active")
}

// GetByID fetches one dataset row.
func (r *DatasetRepository) GetByID(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Dataset, error) {
	const query = `
		SELECT id, name, source_filename, object_store_key, ingested_at,
			date_range_start, date_range_end, bounding_polygon, float_count,
			profile_count, summary, is_active, dataset_version
		FROM datasets WHERE id = $1`

	var d models.Dataset
	var start, end sql.NullTime
	var polygon, summary sql.NullString
	err := db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.SourceFilename, &d.ObjectStoreKey, &d.IngestedAt,
		&start, &end, &polygon, &d.FloatCount, &d.ProfileCount, &summary,
		&d.IsActive, &d.DatasetVersion,
	)
	if err != nil {
		return nil, wrapReadError(err, "dataset", id.String())
	}
	d.DateRangeStart = sqlutil.FromNullTime(start)
	d.DateRangeEnd = sqlutil.FromNullTime(end)
	d.BoundingPolygon = sqlutil.FromNullString(polygon)
	d.Summary = sqlutil.FromNullString(summary)
	return &d, nil
}

// ListActive returns every dataset currently flagged is_active.
func (r *DatasetRepository) ListActive(ctx context.Context, db *sql.DB) ([]*models.Dataset, error) {
	const query = `
		SELECT id, name, source_filename, object_store_key, ingested_at,
			date_range_start, date_range_end, bounding_polygon, float_count,
			profile_count, summary, is_active, dataset_version
		FROM datasets WHERE is_active = true ORDER BY ingested_at DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapReadError(err, "dataset", "active")
	}
	defer rows.Close()

	var out []*models.Dataset
	for rows.Next() {
		var d models.Dataset
		var start, end sql.NullTime
		var polygon, summary sql.NullString
		if err := rows.Scan(
			&d.ID, &d.Name, &d.SourceFilename, &d.ObjectStoreKey, &d.IngestedAt,
			&start, &end, &polygon, &d.FloatCount, &d.ProfileCount, &summary,
			&d.IsActive, &d.DatasetVersion,
		); err != nil {
			return nil, wrapReadError(err, "dataset", "active")
		}
		d.DateRangeStart = sqlutil.FromNullTime(start)
		d.DateRangeEnd = sqlutil.FromNullTime(end)
		d.BoundingPolygon = sqlutil.FromNullString(polygon)
		d.Summary = sqlutil.FromNullString(summary)
		out = append(out, &d)
	}
	return out, rows.Err()
}
