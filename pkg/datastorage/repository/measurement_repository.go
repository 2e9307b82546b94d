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
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/shared/logging"
)

// measurementColumns is shared between the per-batch placeholder
// builder and the literal column list in the INSERT statement.
const measurementColumns = 22

// DefaultMeasurementBatchSize is the batch size ReplaceForProfile uses
// when the caller doesn't override it (internal/config's
// OrchestratorConfig.MeasurementBatchSize is the usual source).
const DefaultMeasurementBatchSize = 1000

// MeasurementRepository owns the measurements table. Every write
// replaces a profile's full measurement set rather than patching
// individual rows, per the data model's delete-then-insert lifecycle.
type MeasurementRepository struct {
	log *zap.Logger
}

// NewMeasurementRepository builds a MeasurementRepository.
func NewMeasurementRepository(log *zap.Logger) *MeasurementRepository {
	return &MeasurementRepository{log: log}
}

// ReplaceForProfile deletes every existing measurement row for
// profileID and bulk-inserts levels in its place in batches of
// batchSize rows per statement (a non-positive batchSize falls back to
// DefaultMeasurementBatchSize) — never one row per round-trip, all
// within tx so a failure partway through rolls back to the prior,
// complete set.
func (r *MeasurementRepository) ReplaceForProfile(ctx context.Context, tx *sql.Tx, profileID uuid.UUID, levels []*models.Measurement, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultMeasurementBatchSize
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE profile_id = $1`, profileID); err != nil {
		r.log.Error("delete measurements failed", zap.Any("fields", logging.DatabaseFields("delete", "measurements").Error(err)))
		return wrapWriteError(err, "measurement", "delete")
	}

	for start := 0; start < len(levels); start += batchSize {
		end := start + batchSize
		if end > len(levels) {
			end = len(levels)
		}
		if err := r.insertBatch(ctx, tx, profileID, levels[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// insertBatch writes one multi-row INSERT ... VALUES (...),(...) for
// batch, the style every repository in this package uses for bulk
// writes instead of a loop of single-row statements.
func (r *MeasurementRepository) insertBatch(ctx context.Context, tx *sql.Tx, profileID uuid.UUID, batch []*models.Measurement) error {
	if len(batch) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO measurements (id, profile_id, level_index, pressure, pressure_qc,
		temperature, temperature_qc, salinity, salinity_qc, dissolved_oxygen, dissolved_oxygen_qc,
		chlorophyll, chlorophyll_qc, nitrate, nitrate_qc, ph, ph_qc, backscatter, backscatter_qc,
		irradiance, irradiance_qc, is_outlier) VALUES `)

	args := make([]interface{}, 0, len(batch)*measurementColumns)
	for i, m := range batch {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ProfileID = profileID

		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(")
		for col := 0; col < measurementColumns; col++ {
			if col > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", i*measurementColumns+col+1)
		}
		sb.WriteString(")")

		args = append(args,
			m.ID, m.ProfileID, m.LevelIndex, m.Pressure, m.PressureQC,
			m.Temperature, m.TemperatureQC, m.Salinity, m.SalinityQC,
			m.DissolvedOxygen, m.DissolvedOxygenQC, m.Chlorophyll, m.ChlorophyllQC,
			m.Nitrate, m.NitrateQC, m.PH, m.PHQC, m.Backscatter, m.BackscatterQC,
			m.Irradiance, m.IrradianceQC, m.IsOutlier,
		)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		r.log.Error("insert measurement batch failed", zap.Any("fields", logging.DatabaseFields("insert", "measurements").
			Custom("batch_size", len(batch)).Error(err)))
		return wrapWriteError(err, "measurement", "insert")
	}
	return nil
}

// ListForProfile returns every measurement row for profileID ordered
// by depth level.
func (r *MeasurementRepository) ListForProfile(ctx context.Context, db *sql.DB, profileID uuid.UUID) ([]*models.Measurement, error) {
	const query = `
		SELECT id, profile_id, level_index, pressure, pressure_qc, temperature, temperature_qc,
			salinity, salinity_qc, dissolved_oxygen, dissolved_oxygen_qc, chlorophyll, chlorophyll_qc,
			nitrate, nitrate_qc, ph, ph_qc, backscatter, backscatter_qc, irradiance, irradiance_qc, is_outlier
		FROM measurements WHERE profile_id = $1 ORDER BY level_index`

	rows, err := db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, wrapReadError(err, "measurement", profileID.String())
	}
	defer rows.Close()

	var out []*models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(
			&m.ID, &m.ProfileID, &m.LevelIndex, &m.Pressure, &m.PressureQC,
			&m.Temperature, &m.TemperatureQC, &m.Salinity, &m.SalinityQC,
			&m.DissolvedOxygen, &m.DissolvedOxygenQC, &m.Chlorophyll, &m.ChlorophyllQC,
			&m.Nitrate, &m.NitrateQC, &m.PH, &m.PHQC, &m.Backscatter, &m.BackscatterQC,
			&m.Irradiance, &m.IrradianceQC, &m.IsOutlier,
		); err != nil {
			return nil, wrapReadError(err, "measurement", profileID.String())
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
