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

// Package summarizer computes post-ingest dataset statistics and an
// optional LLM-generated human summary. An LLM failure of any kind
// falls back to the deterministic template and never fails the job.
package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/convexhull"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/ai/llm"
	"github.com/argoplatform/argonaut/pkg/argo/parser"
)

// Stats is the deterministic post-ingest metadata summarizer always
// produces, independent of whether the LLM call succeeds.
type Stats struct {
	DateRangeStart  *time.Time
	DateRangeEnd    *time.Time
	FloatCount      int
	ProfileCount    int
	Variables       []string
	BoundingPolygon string // WKT, empty when fewer than 3 valid points exist
}

// Summarizer computes Stats and an optional human summary sentence.
type Summarizer struct {
	llmClient llm.Client
	timeout   time.Duration
	log       *zap.Logger
}

// New builds a Summarizer. llmClient may be nil, in which case
// Summarize always falls back to the template summary.
func New(llmClient llm.Client, timeout time.Duration, log *zap.Logger) *Summarizer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Summarizer{llmClient: llmClient, timeout: timeout, log: log}
}

// Compute derives Stats from a file's profile records. floatCount
// counts distinct platforms touched across the whole job, which the
// orchestrator tracks outside a single file's parse result.
func Compute(profiles []parser.ProfileRecord, floatCount int, variables []string) Stats {
	stats := Stats{FloatCount: floatCount, ProfileCount: len(profiles), Variables: dedupSorted(variables)}

	var ring orb.Ring
	for _, p := range profiles {
		if p.PositionInvalid {
			continue
		}
		ring = append(ring, orb.Point{p.Longitude, p.Latitude})

		if !p.TimestampMissing && p.Timestamp != nil {
			if stats.DateRangeStart == nil || p.Timestamp.Before(*stats.DateRangeStart) {
				stats.DateRangeStart = p.Timestamp
			}
			if stats.DateRangeEnd == nil || p.Timestamp.After(*stats.DateRangeEnd) {
				stats.DateRangeEnd = p.Timestamp
			}
		}
	}

	if len(ring) >= 3 {
		hull := convexhull.Compute(orb.MultiPoint(ring))
		switch g := hull.(type) {
		case orb.Polygon:
			stats.BoundingPolygon = wkt.MarshalString(g)
		case orb.Ring:
			stats.BoundingPolygon = wkt.MarshalString(orb.Polygon{g})
		case orb.LineString:
			stats.BoundingPolygon = wkt.MarshalString(orb.Polygon{orb.Ring(g)})
		}
	}

	return stats
}

func dedupSorted(vars []string) []string {
	seen := make(map[string]struct{}, len(vars))
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Summarize returns a 2-3 sentence human summary, preferring the LLM
// provider and falling back to a deterministic template on any error
// (timeout, network, provider error, or a nil client).
func (s *Summarizer) Summarize(ctx context.Context, datasetName string, stats Stats) string {
	template := templateSummary(datasetName, stats)
	if s.llmClient == nil {
		return template
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Summarize this oceanographic dataset in 2-3 sentences: name=%s floats=%d profiles=%d variables=%s date_range=%s..%s",
		datasetName, stats.FloatCount, stats.ProfileCount, strings.Join(stats.Variables, ","),
		formatTime(stats.DateRangeStart), formatTime(stats.DateRangeEnd),
	)

	result, err := s.llmClient.Chat(callCtx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.ChatOptions{MaxTokens: 200})
	if err != nil {
		s.log.Warn("llm summary failed, using template", zap.String("dataset", datasetName), zap.Error(err))
		return template
	}
	return strings.TrimSpace(result)
}

func templateSummary(datasetName string, stats Stats) string {
	return fmt.Sprintf(
		"Dataset %q contains %d profiles across %d floats, measuring %s, spanning %s to %s.",
		datasetName, stats.ProfileCount, stats.FloatCount, strings.Join(stats.Variables, ", "),
		formatTime(stats.DateRangeStart), formatTime(stats.DateRangeEnd),
	)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format("2006-01-02")
}
