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

// Package parser decodes the ARGO self-describing binary profile
// format (a NetCDF-classic-derived container: fixed header, a
// variable dictionary carrying per-variable fill values, and
// record-oriented profile/measurement data) directly over
// encoding/binary and bytes.Reader. No Go NetCDF binding exists to
// reach for here, so this is the one package in the module whose core
// decode loop is intentionally stdlib-only.
package parser

import "time"

// magic identifies a well-formed file; anything else is rejected
// before any variable is read.
var magic = [4]byte{'A', 'R', 'G', 'O'}

const formatVersion uint8 = 1

// featureType is the file's declared top-level shape. Only profile
// files are supported; trajectory files are out of scope per
// SPEC_FULL §4.2 and are rejected with a stable error before any
// variable decode is attempted.
type featureType uint8

const (
	featureTypeProfile           featureType = 0
	featureTypeTrajectory        featureType = 1
	featureTypeTrajectoryProfile featureType = 2
)

func (f featureType) String() string {
	switch f {
	case featureTypeProfile:
		return "profile"
	case featureTypeTrajectory:
		return "trajectory"
	case featureTypeTrajectoryProfile:
		return "trajectoryProfile"
	default:
		return "unknown"
	}
}

// argoEpoch is the ARGO Julian-day reference instant: 1950-01-01T00:00:00Z.
var argoEpoch = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)

// mandatoryVariables are the per-level variables every profile file
// must declare in its variable dictionary.
var mandatoryVariables = []string{"PRES", "TEMP", "PSAL"}

// bgcVariables maps each optional biogeochemical variable's on-disk
// name to the Measurement field it populates.
var bgcVariables = []string{
	"DOXY", "CHLA", "NITRATE", "PH_IN_SITU_TOTAL", "BBP700", "DOWNWELLING_IRRADIANCE",
}

// floatTypeCode / dataModeCode mirror models.FloatType / models.DataMode
// as single bytes on the wire.
type floatTypeCode uint8

const (
	floatTypeCodeCore floatTypeCode = 0
	floatTypeCodeBGC  floatTypeCode = 1
	floatTypeCodeDeep floatTypeCode = 2
)
