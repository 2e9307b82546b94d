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

package cleaner

import (
	"github.com/argoplatform/argonaut/pkg/argo/parser"
	"github.com/argoplatform/argonaut/pkg/datastorage/models"
)

// FlagCounts tallies how many levels were flagged per variable across
// one Clean call, for the metadata summarizer's report.
type FlagCounts struct {
	Temperature     int
	Salinity        int
	Pressure        int
	DissolvedOxygen int
	Chlorophyll     int
	Nitrate         int
	PH              int
	Total           int
}

// Clean converts a parsed profile's measurement records into
// persistable Measurement rows, applying bounds to set IsOutlier. A
// value outside its bound is retained and flagged, never dropped or
// nulled.
func Clean(bounds *BoundsTable, levels []parser.MeasurementRecord) ([]*models.Measurement, FlagCounts) {
	out := make([]*models.Measurement, 0, len(levels))
	var counts FlagCounts

	for _, lvl := range levels {
		m := &models.Measurement{
			LevelIndex:        lvl.LevelIndex,
			Pressure:          lvl.Pressure,
			PressureQC:        lvl.PressureQC,
			Temperature:       lvl.Temperature,
			TemperatureQC:     lvl.TemperatureQC,
			Salinity:          lvl.Salinity,
			SalinityQC:        lvl.SalinityQC,
			DissolvedOxygen:   lvl.DissolvedOxygen,
			DissolvedOxygenQC: lvl.DissolvedOxygenQC,
			Chlorophyll:       lvl.Chlorophyll,
			ChlorophyllQC:     lvl.ChlorophyllQC,
			Nitrate:           lvl.Nitrate,
			NitrateQC:         lvl.NitrateQC,
			PH:                lvl.PH,
			PHQC:              lvl.PHQC,
			Backscatter:       lvl.Backscatter,
			BackscatterQC:     lvl.BackscatterQC,
			Irradiance:        lvl.Irradiance,
			IrradianceQC:      lvl.IrradianceQC,
		}

		outlier := false
		if !inRange(m.Temperature, bounds.TemperatureMin, bounds.TemperatureMax) {
			counts.Temperature++
			outlier = true
		}
		if !inRange(m.Salinity, bounds.SalinityMin, bounds.SalinityMax) {
			counts.Salinity++
			outlier = true
		}
		if !inRange(m.Pressure, bounds.PressureMin, bounds.PressureMax) {
			counts.Pressure++
			outlier = true
		}
		if !inRange(m.DissolvedOxygen, bounds.DissolvedOxygenMin, bounds.DissolvedOxygenMax) {
			counts.DissolvedOxygen++
			outlier = true
		}
		if !inRange(m.Chlorophyll, bounds.ChlorophyllMin, bounds.ChlorophyllMax) {
			counts.Chlorophyll++
			outlier = true
		}
		if !inRange(m.Nitrate, bounds.NitrateMin, bounds.NitrateMax) {
			counts.Nitrate++
			outlier = true
		}
		if !inRange(m.PH, bounds.PHMin, bounds.PHMax) {
			counts.PH++
			outlier = true
		}

		m.IsOutlier = outlier
		if outlier {
			counts.Total++
		}
		out = append(out, m)
	}

	return out, counts
}
