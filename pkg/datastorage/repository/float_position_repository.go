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

	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository/sqlutil"
)

// FloatPositionRepository owns the float_positions table, the
// denormalized (platform, cycle) -> lat/lon row the map-bounding-box
// query path reads instead of joining through profiles.
type FloatPositionRepository struct {
	log *zap.Logger
}

// NewFloatPositionRepository builds a FloatPositionRepository.
func NewFloatPositionRepository(log *zap.Logger) *FloatPositionRepository {
	return &FloatPositionRepository{log: log}
}

// Upsert writes p within tx, kept in lockstep with the profile write
// that triggered it by sharing the same transaction.
func (r *FloatPositionRepository) Upsert(ctx context.Context, tx *sql.Tx, p *models.FloatPosition) error {
	const query = `
		INSERT INTO float_positions (platform_number, cycle_number, latitude, longitude, timestamp, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (platform_number, cycle_number) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			timestamp = EXCLUDED.timestamp,
			updated_at = now()`

	_, err := tx.ExecContext(ctx, query,
		p.PlatformNumber, p.CycleNumber, p.Latitude, p.Longitude, sqlutil.ToNullTime(p.Timestamp),
	)
	return wrapWriteError(err, "float_position", "upsert")
}

// ListInBoundingBox returns every float position whose point falls
// within [minLat,maxLat] x [minLon,maxLon].
func (r *FloatPositionRepository) ListInBoundingBox(ctx context.Context, db *sql.DB, minLat, maxLat, minLon, maxLon float64) ([]*models.FloatPosition, error) {
	const query = `
		SELECT platform_number, cycle_number, latitude, longitude, timestamp, updated_at
		FROM float_positions
		WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4`

	rows, err := db.QueryContext(ctx, query, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, wrapReadError(err, "float_position", "bounding_box")
	}
	defer rows.Close()

	var out []*models.FloatPosition
	for rows.Next() {
		var p models.FloatPosition
		var ts sql.NullTime
		if err := rows.Scan(&p.PlatformNumber, &p.CycleNumber, &p.Latitude, &p.Longitude, &ts, &p.UpdatedAt); err != nil {
			return nil, wrapReadError(err, "float_position", "bounding_box")
		}
		p.Timestamp = sqlutil.FromNullTime(ts)
		out = append(out, &p)
	}
	return out, rows.Err()
}
