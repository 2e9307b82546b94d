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
)

// EmbeddingRepository owns the dataset_embeddings and
// float_embeddings tables, both upserted by the indexer.
type EmbeddingRepository struct {
	log *zap.Logger
}

// NewEmbeddingRepository builds an EmbeddingRepository.
func NewEmbeddingRepository(log *zap.Logger) *EmbeddingRepository {
	return &EmbeddingRepository{log: log}
}

// UpsertDatasetEmbedding writes or refreshes a dataset's embedding row.
func (r *EmbeddingRepository) UpsertDatasetEmbedding(ctx context.Context, db *sql.DB, e *models.DatasetEmbedding) error {
	const query = `
		INSERT INTO dataset_embeddings (dataset_id, embedded_text, embedding, status, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (dataset_id) DO UPDATE SET
			embedded_text = EXCLUDED.embedded_text,
			embedding = EXCLUDED.embedding,
			status = EXCLUDED.status,
			updated_at = now()`

	_, err := db.ExecContext(ctx, query, e.DatasetID, e.EmbeddedText, vectorLiteral(e.Embedding), e.Status)
	return wrapWriteError(err, "dataset_embedding", "upsert")
}

// UpsertFloatEmbedding writes or refreshes a float's embedding row.
func (r *EmbeddingRepository) UpsertFloatEmbedding(ctx context.Context, db *sql.DB, e *models.FloatEmbedding) error {
	const query = `
		INSERT INTO float_embeddings (platform_number, embedded_text, embedding, status, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (platform_number) DO UPDATE SET
			embedded_text = EXCLUDED.embedded_text,
			embedding = EXCLUDED.embedding,
			status = EXCLUDED.status,
			updated_at = now()`

	_, err := db.ExecContext(ctx, query, e.PlatformNumber, e.EmbeddedText, vectorLiteral(e.Embedding), e.Status)
	return wrapWriteError(err, "float_embedding", "upsert")
}

// NearestDatasets returns the limit dataset IDs whose embedding is
// closest to query under pgvector's cosine-distance operator.
func (r *EmbeddingRepository) NearestDatasets(ctx context.Context, db *sql.DB, query []float32, limit int) ([]uuid.UUID, error) {
	const q = `
		SELECT dataset_id FROM dataset_embeddings
		WHERE status = 'indexed'
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := db.QueryContext(ctx, q, vectorLiteral(query), limit)
	if err != nil {
		return nil, wrapReadError(err, "dataset_embedding", "nearest")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapReadError(err, "dataset_embedding", "nearest")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// vectorLiteral renders a float32 slice as the text form pgvector's
// input parser accepts ("[0.1,0.2,...]").
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
