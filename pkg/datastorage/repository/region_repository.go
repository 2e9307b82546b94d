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
)

// RegionRepository owns the ocean_regions table: named polygons,
// self-referencing a parent basin, used for region-scoped queries and
// reverse lookup when building float descriptors.
type RegionRepository struct {
	log *zap.Logger
}

// NewRegionRepository builds a RegionRepository.
func NewRegionRepository(log *zap.Logger) *RegionRepository {
	return &RegionRepository{log: log}
}

// ListAll returns every region, parents before children is not
// guaranteed by this query — callers that need a tree build one from
// ParentID themselves.
func (r *RegionRepository) ListAll(ctx context.Context, db *sql.DB) ([]*models.OceanRegion, error) {
	const query = `SELECT id, name, parent_id, ST_AsText(polygon) FROM ocean_regions`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapReadError(err, "ocean_region", "all")
	}
	defer rows.Close()

	var out []*models.OceanRegion
	for rows.Next() {
		var reg models.OceanRegion
		var parentID sql.NullString
		if err := rows.Scan(&reg.ID, &reg.Name, &parentID, &reg.Polygon); err != nil {
			return nil, wrapReadError(err, "ocean_region", "all")
		}
		if parentID.Valid {
			parsed, err := uuid.Parse(parentID.String)
			if err == nil {
				reg.ParentID = &parsed
			}
		}
		out = append(out, &reg)
	}
	return out, rows.Err()
}

// FindContainingPoint returns the smallest region (if any) whose
// polygon contains (lat, lon), used by the indexer to reverse-lookup a
// float's region when it builds an embedding's descriptive text.
func (r *RegionRepository) FindContainingPoint(ctx context.Context, db *sql.DB, lat, lon float64) (*models.OceanRegion, error) {
	const query = `
		SELECT id, name, parent_id, ST_AsText(polygon)
		FROM ocean_regions
		WHERE ST_Contains(polygon, ST_SetSRID(ST_MakePoint($2, $1), 4326))
		ORDER BY ST_Area(polygon) ASC
		LIMIT 1`

	var reg models.OceanRegion
	var parentID sql.NullString
	err := db.QueryRowContext(ctx, query, lat, lon).Scan(&reg.ID, &reg.Name, &parentID, &reg.Polygon)
	if err != nil {
		return nil, wrapReadError(err, "ocean_region", "containing_point")
	}
	if parentID.Valid {
		parsed, err := uuid.Parse(parentID.String)
		if err == nil {
			reg.ParentID = &parsed
		}
	}
	return &reg, nil
}

// ByName resolves a region by exact name.
func (r *RegionRepository) ByName(ctx context.Context, db *sql.DB, name string) (*models.OceanRegion, error) {
	const query = `SELECT id, name, parent_id, ST_AsText(polygon) FROM ocean_regions WHERE name = $1`
	var reg models.OceanRegion
	var parentID sql.NullString
	err := db.QueryRowContext(ctx, query, name).Scan(&reg.ID, &reg.Name, &parentID, &reg.Polygon)
	if err != nil {
		return nil, wrapReadError(err, "ocean_region", name)
	}
	if parentID.Valid {
		parsed, err := uuid.Parse(parentID.String)
		if err == nil {
			reg.ParentID = &parsed
		}
	}
	return &reg, nil
}
