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
	"github.com/argoplatform/argonaut/pkg/shared/logging"
)

// FloatRepository owns the floats table, one row per platform_number
// regardless of how many files have ever mentioned it.
type FloatRepository struct {
	log *zap.Logger
}

// NewFloatRepository builds a FloatRepository.
func NewFloatRepository(log *zap.Logger) *FloatRepository {
	return &FloatRepository{log: log}
}

// UpsertFloat inserts or refreshes the float row identified by
// f.PlatformNumber within tx, returning the stored row.
func (r *FloatRepository) UpsertFloat(ctx context.Context, tx *sql.Tx, f *models.Float) (*models.Float, error) {
	const query = `
		INSERT INTO floats (platform_number, wmo_identifier, float_type, deployment_time,
			deployment_latitude, deployment_longitude, program, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (platform_number) DO UPDATE SET
			wmo_identifier = EXCLUDED.wmo_identifier,
			float_type = EXCLUDED.float_type,
			program = EXCLUDED.program,
			updated_at = now()
		RETURNING created_at, updated_at`

	row := tx.QueryRowContext(ctx, query,
		f.PlatformNumber, f.WMOIdentifier, f.FloatType,
		sqlutil.ToNullTime(f.DeploymentTime),
		f.DeploymentLatitude, f.DeploymentLongitude, f.Program,
	)
	if err := row.Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		r.log.Error("upsert float failed", zap.Any("fields", logging.DatabaseFields("upsert_float", "floats").
			Custom("platform_number", f.PlatformNumber).Error(err)))
		return nil, wrapWriteError(err, "float", "upsert")
	}
	return f, nil
}

// GetByPlatformNumber looks a float up by its identity.
func (r *FloatRepository) GetByPlatformNumber(ctx context.Context, db *sql.DB, platformNumber string) (*models.Float, error) {
	const query = `
		SELECT platform_number, wmo_identifier, float_type, deployment_time,
			deployment_latitude, deployment_longitude, program, created_at, updated_at
		FROM floats WHERE platform_number = $1`

	var f models.Float
	var deploymentTime sql.NullTime
	err := db.QueryRowContext(ctx, query, platformNumber).Scan(
		&f.PlatformNumber, &f.WMOIdentifier, &f.FloatType, &deploymentTime,
		&f.DeploymentLatitude, &f.DeploymentLongitude, &f.Program, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, wrapReadError(err, "float", platformNumber)
	}
	f.DeploymentTime = sqlutil.FromNullTime(deploymentTime)
	return &f, nil
}
