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

// Package writer exposes purely transactional write operations over
// the repository layer. It never opens or commits its own
// transaction — the orchestrator owns that boundary — so a partial
// failure anywhere in WriteParseResult rolls back every row the
// current job attempted to write.
package writer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/argo/parser"
	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository"
)

// CleanedProfile pairs one parsed profile's identity fields with its
// already-bounds-checked measurement rows.
type CleanedProfile struct {
	Record       parser.ProfileRecord
	Measurements []*models.Measurement
}

// Writer bundles the repositories the ingestion write path drives.
// WriteDataset creates the dataset row; WriteParseResult writes, in
// FK-dependency order, the float, then each profile, its measurements,
// and the denormalized position row.
type Writer struct {
	floats     *repository.FloatRepository
	datasets   *repository.DatasetRepository
	profiles   *repository.ProfileRepository
	measurements *repository.MeasurementRepository
	positions  *repository.FloatPositionRepository
	jobs       *repository.JobRepository
	log        *zap.Logger
}

// New builds a Writer from a fresh set of repositories.
func New(log *zap.Logger) *Writer {
	return &Writer{
		floats:       repository.NewFloatRepository(log),
		datasets:     repository.NewDatasetRepository(log),
		profiles:     repository.NewProfileRepository(log),
		measurements: repository.NewMeasurementRepository(log),
		positions:    repository.NewFloatPositionRepository(log),
		jobs:         repository.NewJobRepository(log),
		log:          log,
	}
}

// UpsertFloat writes the float identity row and returns the stored copy.
func (w *Writer) UpsertFloat(ctx context.Context, tx *sql.Tx, f *models.Float) (*models.Float, error) {
	return w.floats.UpsertFloat(ctx, tx, f)
}

// NextDatasetVersion returns the version number a new dataset row
// for name should carry.
func (w *Writer) NextDatasetVersion(ctx context.Context, db *sql.DB, name string) (int, error) {
	return w.datasets.NextVersion(ctx, db, name)
}

// WriteDataset creates the dataset row the job's profiles will
// reference. Called before any profile/measurement row write so every
// later insert in the same transaction can set dataset_id.
func (w *Writer) WriteDataset(ctx context.Context, tx *sql.Tx, d *models.Dataset) (*models.Dataset, error) {
	return w.datasets.Create(ctx, tx, d)
}

// UpdateDatasetSummary persists the metadata summarizer's output
// (date range, bounding polygon, counts, variable list, summary text)
// onto an existing dataset row.
func (w *Writer) UpdateDatasetSummary(ctx context.Context, tx *sql.Tx, d *models.Dataset) error {
	return w.datasets.UpdateSummary(ctx, tx, d)
}

// UpsertProfile writes one profile row, including the spatial point
// computed from (longitude, latitude) when the position is valid.
func (w *Writer) UpsertProfile(ctx context.Context, tx *sql.Tx, p *models.Profile) (*models.Profile, error) {
	return w.profiles.Upsert(ctx, tx, p)
}

// WriteMeasurements replaces profileID's full measurement set.
func (w *Writer) WriteMeasurements(ctx context.Context, tx *sql.Tx, profileID uuid.UUID, levels []*models.Measurement, batchSize int) error {
	return w.measurements.ReplaceForProfile(ctx, tx, profileID, levels, batchSize)
}

// UpsertFloatPosition maintains the denormalized spatial-index row.
// Only called when the profile's position is valid; an invalid
// position leaves any prior position row in place rather than
// overwriting it with garbage coordinates.
func (w *Writer) UpsertFloatPosition(ctx context.Context, tx *sql.Tx, p *models.FloatPosition) error {
	return w.positions.Upsert(ctx, tx, p)
}

// WriteParseResult runs upsert_float → upsert_profile →
// write_measurements → upsert_float_position for every profile in
// profiles, in FK-dependency order, all within tx. Running this twice
// on identical input is idempotent: row counts and values converge,
// only updated_at timestamps advance.
func (w *Writer) WriteParseResult(ctx context.Context, tx *sql.Tx, header parser.FloatHeader, datasetID uuid.UUID, profiles []CleanedProfile, batchSize int) (int, error) {
	floatRow := &models.Float{
		PlatformNumber: header.PlatformNumber,
		WMOIdentifier:  header.WMOIdentifier,
		FloatType:      header.FloatType,
		Program:        header.Program,
	}
	if _, err := w.UpsertFloat(ctx, tx, floatRow); err != nil {
		return 0, fmt.Errorf("upsert float %s: %w", header.PlatformNumber, err)
	}

	written := 0
	for _, cp := range profiles {
		rec := cp.Record
		profileRow := &models.Profile{
			PlatformNumber:   header.PlatformNumber,
			CycleNumber:      rec.CycleNumber,
			DatasetID:        datasetID,
			JulianDay:        rec.JulianDay,
			Timestamp:        rec.Timestamp,
			TimestampMissing: rec.TimestampMissing,
			Latitude:         rec.Latitude,
			Longitude:        rec.Longitude,
			PositionInvalid:  rec.PositionInvalid,
			DataMode:         rec.DataMode,
		}
		stored, err := w.UpsertProfile(ctx, tx, profileRow)
		if err != nil {
			return written, fmt.Errorf("upsert profile %s/%d: %w", header.PlatformNumber, rec.CycleNumber, err)
		}

		if err := w.WriteMeasurements(ctx, tx, stored.ID, cp.Measurements, batchSize); err != nil {
			return written, fmt.Errorf("write measurements %s/%d: %w", header.PlatformNumber, rec.CycleNumber, err)
		}

		if !rec.PositionInvalid {
			posRow := &models.FloatPosition{
				PlatformNumber: header.PlatformNumber,
				CycleNumber:    rec.CycleNumber,
				Latitude:       rec.Latitude,
				Longitude:      rec.Longitude,
				Timestamp:      rec.Timestamp,
			}
			if err := w.UpsertFloatPosition(ctx, tx, posRow); err != nil {
				return written, fmt.Errorf("upsert float position %s/%d: %w", header.PlatformNumber, rec.CycleNumber, err)
			}
		}

		written++
	}

	return written, nil
}
