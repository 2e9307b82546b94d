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

// Package geography resolves informal place names ("Gulf Stream",
// "off the coast of Chile") mentioned in a natural-language question
// into coordinate hints the LLM prompt can anchor a bounding-box
// clause to. The table is loaded once at process startup and never
// rebuilt — it is process-wide immutable ambient state, the same
// pattern the schema prompt in pkg/query/nlpipeline follows, in
// contrast to the one genuinely runtime-mutable table in this system
// (pkg/argo/cleaner's BoundsWatcher).
package geography

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Location is one named place the gazetteer can match against a
// question's text.
type Location struct {
	Name      string   `yaml:"name"`
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
	Aliases   []string `yaml:"aliases"`
}

// file is the on-disk shape of the gazetteer YAML.
type file struct {
	Locations []Location `yaml:"locations"`
}

// Table is the immutable, case-insensitive substring-matchable
// gazetteer. A Table is safe for concurrent read access from every
// query request.
type Table struct {
	locations []Location
}

// defaultLocations seeds the gazetteer when no file is configured, so
// the resolver still recognizes the ocean basins and currents every
// ARGO question is likely to name.
var defaultLocations = []Location{
	{Name: "Gulf Stream", Latitude: 38.0, Longitude: -70.0},
	{Name: "Kuroshio Current", Latitude: 35.0, Longitude: 142.0},
	{Name: "Southern Ocean", Latitude: -60.0, Longitude: 0.0},
	{Name: "North Atlantic", Latitude: 45.0, Longitude: -30.0},
	{Name: "South Atlantic", Latitude: -30.0, Longitude: -15.0},
	{Name: "North Pacific", Latitude: 40.0, Longitude: -160.0},
	{Name: "South Pacific", Latitude: -30.0, Longitude: -140.0},
	{Name: "Indian Ocean", Latitude: -20.0, Longitude: 80.0},
	{Name: "Mediterranean Sea", Latitude: 38.0, Longitude: 15.0},
	{Name: "Arctic Ocean", Latitude: 85.0, Longitude: 0.0},
	{Name: "Coral Sea", Latitude: -18.0, Longitude: 152.0},
	{Name: "Bay of Bengal", Latitude: 15.0, Longitude: 88.0},
	{Name: "Weddell Sea", Latitude: -72.0, Longitude: -40.0, Aliases: []string{"weddell"}},
	{Name: "Labrador Sea", Latitude: 57.0, Longitude: -52.0},
	{Name: "Tasman Sea", Latitude: -38.0, Longitude: 160.0},
}

// Load reads the gazetteer YAML at path, falling back to
// defaultLocations when path is empty. A missing or malformed file is
// an error — unlike the outlier bounds, the geography table is loaded
// only once at startup, so there is no later chance to notice and log
// a bad file.
func Load(path string) (*Table, error) {
	if path == "" {
		return &Table{locations: defaultLocations}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geography file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse geography file: %w", err)
	}
	if len(f.Locations) == 0 {
		return &Table{locations: defaultLocations}, nil
	}
	return &Table{locations: f.Locations}, nil
}

// Match is one gazetteer entry found in a question's text.
type Match struct {
	Location
	MatchedOn string
}

// Resolve returns every gazetteer entry whose name or alias appears as
// a case-insensitive substring of question. Callers should expect zero
// matches for most questions: absence is not an error.
func (t *Table) Resolve(question string) []Match {
	if t == nil {
		return nil
	}
	lower := strings.ToLower(question)

	var matches []Match
	for _, loc := range t.locations {
		if strings.Contains(lower, strings.ToLower(loc.Name)) {
			matches = append(matches, Match{Location: loc, MatchedOn: loc.Name})
			continue
		}
		for _, alias := range loc.Aliases {
			if alias != "" && strings.Contains(lower, strings.ToLower(alias)) {
				matches = append(matches, Match{Location: loc, MatchedOn: alias})
				break
			}
		}
	}
	return matches
}

// Hint renders a prompt snippet naming every matched location's
// coordinates, for the nlpipeline to append to the system prompt. It
// returns an empty string when nothing matched, so the caller can
// unconditionally append it without an extra nil check.
func (t *Table) Hint(question string) string {
	matches := t.Resolve(question)
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("GEOGRAPHIC HINTS (approximate center point, not a bounding box):\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- %q is near latitude %.2f, longitude %.2f\n", m.Name, m.Latitude, m.Longitude)
	}
	return b.String()
}
