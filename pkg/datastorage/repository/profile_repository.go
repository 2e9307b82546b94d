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

// ProfileRepository owns the profiles table: one row per
// (platform_number, cycle_number), upserted in place on re-ingestion.
type ProfileRepository struct {
	log *zap.Logger
}

// NewProfileRepository builds a ProfileRepository.
func NewProfileRepository(log *zap.Logger) *ProfileRepository {
	return &ProfileRepository{log: log}
}

// Upsert inserts or updates the profile identified by
// (PlatformNumber, CycleNumber) within tx. geom is written as NULL
// whenever p.PositionInvalid, enforcing the "geom populated iff
// position_invalid = false" invariant at the single call site that
// writes it.
func (r *ProfileRepository) Upsert(ctx context.Context, tx *sql.Tx, p *models.Profile) (*models.Profile, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	const query = `
		INSERT INTO profiles (id, platform_number, cycle_number, dataset_id, julian_day,
			timestamp, timestamp_missing, latitude, longitude, position_invalid, geom, data_mode,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			CASE WHEN $10 THEN NULL ELSE ST_SetSRID(ST_MakePoint($9, $8), 4326)::geography END,
			$11, now(), now())
		ON CONFLICT (platform_number, cycle_number) DO UPDATE SET
			dataset_id = EXCLUDED.dataset_id,
			julian_day = EXCLUDED.julian_day,
			timestamp = EXCLUDED.timestamp,
			timestamp_missing = EXCLUDED.timestamp_missing,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			position_invalid = EXCLUDED.position_invalid,
			geom = EXCLUDED.geom,
			data_mode = EXCLUDED.data_mode,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		p.ID, p.PlatformNumber, p.CycleNumber, p.DatasetID, p.JulianDay,
		sqlutil.ToNullTime(p.Timestamp), p.TimestampMissing, p.Latitude, p.Longitude,
		p.PositionInvalid, p.DataMode,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		r.log.Error("upsert profile failed", zap.Any("fields", logging.DatabaseFields("upsert", "profiles").
			Custom("platform_number", p.PlatformNumber).Custom("cycle_number", p.CycleNumber).Error(err)))
		return nil, wrapWriteError(err, "profile", "upsert")
	}
	return p, nil
}

// GetByPlatformAndCycle looks a profile up by its natural key.
func (r *ProfileRepository) GetByPlatformAndCycle(ctx context.Context, db *sql.DB, platformNumber string, cycleNumber int) (*models.Profile, error) {
	const query = `
		SELECT id, platform_number, cycle_number, dataset_id, julian_day, timestamp,
			timestamp_missing, latitude, longitude, position_invalid, data_mode, created_at, updated_at
		FROM profiles WHERE platform_number = $1 AND cycle_number = $2`

	var p models.Profile
	var ts sql.NullTime
	err := db.QueryRowContext(ctx, query, platformNumber, cycleNumber).Scan(
		&p.ID, &p.PlatformNumber, &p.CycleNumber, &p.DatasetID, &p.JulianDay, &ts,
		&p.TimestampMissing, &p.Latitude, &p.Longitude, &p.PositionInvalid, &p.DataMode,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, wrapReadError(err, "profile", platformNumber)
	}
	p.Timestamp = sqlutil.FromNullTime(ts)
	return &p, nil
}
