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

package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

const defaultEmbeddingDimension = 384

// EmbeddingService turns dataset/float descriptive text and structured
// summary fields into fixed-dimension vectors for NearestDatasets-style
// similarity search.
type EmbeddingService interface {
	GenerateTextEmbedding(ctx context.Context, text string) ([]float64, error)
	GenerateFieldsEmbedding(ctx context.Context, kind string, fields map[string]interface{}) ([]float64, error)
	GenerateLabelsEmbedding(ctx context.Context, labels map[string]string, metadata map[string]interface{}) ([]float64, error)
	CombineEmbeddings(embeddings ...[]float64) []float64
	GetEmbeddingDimension() int
}

// LocalEmbeddingService is a deterministic, dependency-free embedding
// generator: a hashed bag-of-words projection onto a fixed dimension,
// L2-normalized. It needs no external model, so it also serves as the
// fallback HybridEmbeddingService falls back to.
type LocalEmbeddingService struct {
	dimension int
	log       *logrus.Logger
}

// NewLocalEmbeddingService builds a LocalEmbeddingService. A
// non-positive dimension falls back to defaultEmbeddingDimension.
func NewLocalEmbeddingService(dimension int, log *logrus.Logger) *LocalEmbeddingService {
	if dimension <= 0 {
		dimension = defaultEmbeddingDimension
	}
	if log == nil {
		log = logrus.New()
	}
	return &LocalEmbeddingService{dimension: dimension, log: log}
}

// GetEmbeddingDimension returns the vector length this service produces.
func (s *LocalEmbeddingService) GetEmbeddingDimension() int { return s.dimension }

// GenerateTextEmbedding hashes each token of text into a bucket of the
// output vector, accumulating sign-weighted counts, then normalizes.
func (s *LocalEmbeddingService) GenerateTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, s.dimension)
	for _, tok := range tokenize(text) {
		s.hashInto(vec, tok, 1.0)
	}
	return normalize(vec), nil
}

// GenerateFieldsEmbedding folds kind plus a structured field set (e.g.
// a dataset's variable list and summary stats) into one embedding.
// nil, []string and []interface{} values are ignored; everything else
// is rendered to text.
func (s *LocalEmbeddingService) GenerateFieldsEmbedding(ctx context.Context, kind string, fields map[string]interface{}) ([]float64, error) {
	vec := make([]float64, s.dimension)
	s.hashInto(vec, kind, 2.0)

	for _, key := range sortedKeys(fields) {
		switch v := fields[key].(type) {
		case string:
			s.hashInto(vec, key+":"+v, 1.0)
		case nil:
			continue
		case []string, []interface{}:
			continue
		default:
			s.hashInto(vec, fmt.Sprintf("%s:%v", key, v), 1.0)
		}
	}
	return normalize(vec), nil
}

// GenerateLabelsEmbedding folds free-form labels (e.g. region/QC
// labels) and metadata into one embedding.
func (s *LocalEmbeddingService) GenerateLabelsEmbedding(ctx context.Context, labels map[string]string, metadata map[string]interface{}) ([]float64, error) {
	vec := make([]float64, s.dimension)
	for _, key := range sortedStringKeys(labels) {
		s.hashInto(vec, key+":"+labels[key], 1.0)
	}
	for _, key := range sortedKeys(metadata) {
		s.hashInto(vec, fmt.Sprintf("%s:%v", key, metadata[key]), 1.0)
	}
	return normalize(vec), nil
}

// CombineEmbeddings averages its inputs element-wise, skipping any
// that don't match this service's dimension, and renormalizes. A
// single input is returned as-is, without a dimension check or
// normalization.
func (s *LocalEmbeddingService) CombineEmbeddings(embeddings ...[]float64) []float64 {
	if len(embeddings) == 0 {
		return make([]float64, s.dimension)
	}
	if len(embeddings) == 1 {
		return embeddings[0]
	}

	sum := make([]float64, s.dimension)
	count := 0
	for _, e := range embeddings {
		if len(e) != s.dimension {
			continue
		}
		for i, v := range e {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return make([]float64, s.dimension)
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return normalize(sum)
}

// hashInto accumulates weight into vec at a bucket derived from
// hashing token, with a sign determined by a second hash so unrelated
// tokens partially cancel rather than only ever adding.
func (s *LocalEmbeddingService) hashInto(vec []float64, token string, weight float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	idx := int(h.Sum32()) % s.dimension
	if idx < 0 {
		idx += s.dimension
	}

	sign := fnv.New32a()
	_, _ = sign.Write([]byte(token + "#sign"))
	if sign.Sum32()%2 == 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float64) []float64 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return vec
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

func tokenize(text string) []string {
	var tokens []string
	var current []rune
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = nil
		}
	}
	if len(current) > 0 {
		tokens = append(tokens, string(current))
	}
	return tokens
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HybridEmbeddingService prefers an external embedding service (e.g. an
// LLM provider's embeddings endpoint) but falls back to the local
// deterministic one whenever the external one is unset or fails.
type HybridEmbeddingService struct {
	local    *LocalEmbeddingService
	external EmbeddingService
	useLocal bool
	log      *logrus.Logger
}

// NewHybridEmbeddingService builds a HybridEmbeddingService. Either
// argument may be nil; a nil local falls back to the default-dimension
// LocalEmbeddingService.
func NewHybridEmbeddingService(local *LocalEmbeddingService, external EmbeddingService, log *logrus.Logger) *HybridEmbeddingService {
	if local == nil {
		local = NewLocalEmbeddingService(0, log)
	}
	if log == nil {
		log = logrus.New()
	}
	return &HybridEmbeddingService{local: local, external: external, useLocal: false, log: log}
}

// SetUseLocal toggles whether Generate* calls prefer the external
// service (false) or always use the local one (true).
func (h *HybridEmbeddingService) SetUseLocal(useLocal bool) { h.useLocal = useLocal }

func (h *HybridEmbeddingService) active() EmbeddingService {
	if h.useLocal || h.external == nil {
		return h.local
	}
	return h.external
}

func (h *HybridEmbeddingService) GenerateTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	embedding, err := h.active().GenerateTextEmbedding(ctx, text)
	if err != nil && h.active() != h.local {
		h.log.WithError(err).Warn("external embedding service failed, falling back to local")
		return h.local.GenerateTextEmbedding(ctx, text)
	}
	return embedding, err
}

func (h *HybridEmbeddingService) GenerateFieldsEmbedding(ctx context.Context, kind string, fields map[string]interface{}) ([]float64, error) {
	embedding, err := h.active().GenerateFieldsEmbedding(ctx, kind, fields)
	if err != nil && h.active() != h.local {
		return h.local.GenerateFieldsEmbedding(ctx, kind, fields)
	}
	return embedding, err
}

func (h *HybridEmbeddingService) GenerateLabelsEmbedding(ctx context.Context, labels map[string]string, metadata map[string]interface{}) ([]float64, error) {
	embedding, err := h.active().GenerateLabelsEmbedding(ctx, labels, metadata)
	if err != nil && h.active() != h.local {
		return h.local.GenerateLabelsEmbedding(ctx, labels, metadata)
	}
	return embedding, err
}

func (h *HybridEmbeddingService) CombineEmbeddings(embeddings ...[]float64) []float64 {
	return h.active().CombineEmbeddings(embeddings...)
}

func (h *HybridEmbeddingService) GetEmbeddingDimension() int {
	return h.active().GetEmbeddingDimension()
}
