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

// Package indexer computes and upserts embeddings for a dataset and
// its floats, then refreshes the materialized views the map and
// dataset-browse endpoints read. Indexing is fire-and-forget from the
// orchestrator's perspective: its failure must never fail the job that
// triggered it.
package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository"
	"github.com/argoplatform/argonaut/pkg/storage/vector"
)

// embeddingBatchSize caps how many texts one concurrent worker embeds;
// a batch's failure is captured and marks only its own rows
// embedding_failed rather than cancelling sibling batches.
const embeddingBatchSize = 100

// maxConcurrentBatches bounds the errgroup's goroutine fan-out.
const maxConcurrentBatches = 4

// FloatDescriptor is the text and identity the indexer embeds for one
// float newly touched by a dataset.
type FloatDescriptor struct {
	PlatformNumber string
	Text           string
}

// Indexer ties the embedding service to the dataset/float/region
// repositories and the materialized-view refresh.
type Indexer struct {
	embeddings *repository.EmbeddingRepository
	regions    *repository.RegionRepository
	embedSvc   vector.EmbeddingService
	log        *zap.Logger
}

// New builds an Indexer.
func New(embedSvc vector.EmbeddingService, log *zap.Logger) *Indexer {
	return &Indexer{
		embeddings: repository.NewEmbeddingRepository(log),
		regions:    repository.NewRegionRepository(log),
		embedSvc:   embedSvc,
		log:        log,
	}
}

// DatasetDescriptor concatenates the summary with a structured
// fields string (name, variables, date range, float count) — the
// text the dataset embedding is computed over.
func DatasetDescriptor(summary, name string, variables []string, dateStart, dateEnd string, floatCount int) string {
	return fmt.Sprintf("%s | name=%s variables=%s date_range=%s..%s float_count=%d",
		summary, name, strings.Join(variables, ","), dateStart, dateEnd, floatCount)
}

// ReverseRegion resolves the nearest containing region polygon for a
// point, used to enrich a float's descriptor with a human region name.
func (ix *Indexer) ReverseRegion(ctx context.Context, db *sql.DB, lat, lon float64) string {
	region, err := ix.regions.FindContainingPoint(ctx, db, lat, lon)
	if err != nil || region == nil {
		return ""
	}
	return region.Name
}

// IndexDataset embeds descriptor once and upserts it against
// datasetID. A failure here is captured in the returned error for the
// caller to log; it must not propagate as a job failure.
func (ix *Indexer) IndexDataset(ctx context.Context, db *sql.DB, datasetID uuid.UUID, descriptor string) error {
	vec, err := ix.embedSvc.GenerateTextEmbedding(ctx, descriptor)
	status := models.EmbeddingStatusIndexed
	if err != nil {
		ix.log.Warn("dataset embedding failed, marking embedding_failed", zap.String("dataset_id", datasetID.String()), zap.Error(err))
		status = models.EmbeddingStatusEmbeddingFailed
	}

	return ix.embeddings.UpsertDatasetEmbedding(ctx, db, &models.DatasetEmbedding{
		DatasetID:    datasetID,
		EmbeddedText: descriptor,
		Embedding:    toFloat32(vec),
		Status:       status,
	})
}

// IndexFloats embeds every descriptor in concurrent batches of up to
// embeddingBatchSize texts. A batch's embedding failure marks only
// that batch's rows embedding_failed and the remaining batches still
// run — this function never returns early or cancels siblings on one
// batch's error.
func (ix *Indexer) IndexFloats(ctx context.Context, db *sql.DB, descriptors []FloatDescriptor) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(descriptors); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(descriptors) {
			end = len(descriptors)
		}
		batch := descriptors[start:end]

		g.Go(func() error {
			ix.indexFloatBatch(gctx, db, batch)
			return nil // batch failures are swallowed inside indexFloatBatch
		})
	}

	_ = g.Wait() // no goroutine ever returns a non-nil error; Wait never cancels siblings
}

func (ix *Indexer) indexFloatBatch(ctx context.Context, db *sql.DB, batch []FloatDescriptor) {
	for _, d := range batch {
		vec, err := ix.embedSvc.GenerateTextEmbedding(ctx, d.Text)
		status := models.EmbeddingStatusIndexed
		if err != nil {
			ix.log.Warn("float embedding failed, marking embedding_failed",
				zap.String("platform_number", d.PlatformNumber), zap.Error(err))
			status = models.EmbeddingStatusEmbeddingFailed
		}

		if err := ix.embeddings.UpsertFloatEmbedding(ctx, db, &models.FloatEmbedding{
			PlatformNumber: d.PlatformNumber,
			EmbeddedText:   d.Text,
			Embedding:      toFloat32(vec),
			Status:         status,
		}); err != nil {
			ix.log.Error("persist float embedding failed", zap.String("platform_number", d.PlatformNumber), zap.Error(err))
		}
	}
}

// RefreshViews runs a concurrent refresh of the map and dataset-browse
// materialized views. CONCURRENTLY requires the views to carry a
// unique index, set up by the migrations that create them.
func (ix *Indexer) RefreshViews(ctx context.Context, db *sql.DB) error {
	for _, view := range []string{"mv_float_latest_position", "mv_dataset_stats"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", view)); err != nil {
			return fmt.Errorf("refresh %s: %w", view, err)
		}
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
