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

// Package vector provides the embedding generators the indexer uses
// (LocalEmbeddingService, HybridEmbeddingService), retry helpers, and
// the Database interface for a nearest-neighbor embedding store. The
// package contains no Database implementation; the indexer writes
// embeddings through pkg/datastorage/repository.
package vector

import (
	"context"
	"time"
)

// Record is one embedded dataset or float descriptor.
type Record struct {
	ID        string
	Kind      string // "dataset" or "float"
	Text      string
	Embedding []float64
	Metadata  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SimilarRecord pairs a Record with its similarity to a search query.
type SimilarRecord struct {
	Record     *Record
	Similarity float64
	Rank       int
}

// Database describes a nearest-neighbor embedding store. No type in
// this module implements it, and neither the indexer nor the NL
// pipeline calls it.
type Database interface {
	Store(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	FindSimilar(ctx context.Context, query *Record, limit int, threshold float64) ([]*SimilarRecord, error)
	Count(ctx context.Context) (int, error)
}
