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

// Package cleaner applies the outlier bounds table to parsed
// measurements: flagging never drops a value, it only marks is_outlier
// so downstream consumers can choose to exclude it.
package cleaner

import (
	"github.com/argoplatform/argonaut/internal/config"
)

// BoundsTable is an immutable snapshot of the inclusive bounds per
// variable. Clean reads through a *BoundsTable obtained from an
// atomic.Pointer so a concurrent reload never hands one call a mix of
// old and new bounds.
type BoundsTable struct {
	TemperatureMin, TemperatureMax         float64
	SalinityMin, SalinityMax               float64
	PressureMin, PressureMax               float64
	DissolvedOxygenMin, DissolvedOxygenMax float64
	ChlorophyllMin, ChlorophyllMax         float64
	NitrateMin, NitrateMax                 float64
	PHMin, PHMax                           float64
}

// FromConfig converts the YAML-loadable config shape into the bounds
// table used at decode time.
func FromConfig(b config.OutlierBounds) *BoundsTable {
	return &BoundsTable{
		TemperatureMin:     b.TemperatureMin,
		TemperatureMax:     b.TemperatureMax,
		SalinityMin:        b.SalinityMin,
		SalinityMax:        b.SalinityMax,
		PressureMin:        b.PressureMin,
		PressureMax:        b.PressureMax,
		DissolvedOxygenMin: b.DissolvedOxygenMin,
		DissolvedOxygenMax: b.DissolvedOxygenMax,
		ChlorophyllMin:     b.ChlorophyllMin,
		ChlorophyllMax:     b.ChlorophyllMax,
		NitrateMin:         b.NitrateMin,
		NitrateMax:         b.NitrateMax,
		PHMin:              b.PHMin,
		PHMax:              b.PHMax,
	}
}

// inRange reports whether v is within [min, max], treating a nil
// value as always in range (missing data is not an outlier).
func inRange(v *float64, min, max float64) bool {
	if v == nil {
		return true
	}
	return *v >= min && *v <= max
}
