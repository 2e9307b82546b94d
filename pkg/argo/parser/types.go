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

package parser

import (
	"fmt"
	"time"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
)

// FloatHeader carries the one-per-file float identity and metadata
// that the writer upserts into the floats table.
type FloatHeader struct {
	PlatformNumber string
	WMOIdentifier  string
	FloatType      models.FloatType
	Program        string
}

// MeasurementRecord is one depth level within a profile. Values are
// nil wherever the file's declared fill value was observed; QC is
// always a decoded integer 0-9, never the raw byte.
type MeasurementRecord struct {
	LevelIndex        int
	Pressure          *float64
	PressureQC        int
	Temperature       *float64
	TemperatureQC     int
	Salinity          *float64
	SalinityQC        int
	DissolvedOxygen   *float64
	DissolvedOxygenQC int
	Chlorophyll       *float64
	ChlorophyllQC     int
	Nitrate           *float64
	NitrateQC         int
	PH                *float64
	PHQC              int
	Backscatter       *float64
	BackscatterQC     int
	Irradiance        *float64
	IrradianceQC      int
}

// ProfileRecord is one (platform, cycle) vertical profile.
type ProfileRecord struct {
	CycleNumber      int
	JulianDay        float64
	Timestamp        *time.Time
	TimestampMissing bool
	Latitude         float64
	Longitude        float64
	PositionInvalid  bool
	DataMode         models.DataMode
	Measurements     []MeasurementRecord
}

// ParseResult is one file's fully-decoded content: one float header
// and every profile record it carries.
type ParseResult struct {
	Float    FloatHeader
	Profiles []ProfileRecord
}

// MissingVariableError names the mandatory variable a file failed to
// declare in its variable dictionary. Its message is stable so callers
// (and tests) can match it by substring, per SPEC_FULL's "stable error
// naming the missing variable" requirement.
type MissingVariableError struct {
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing required variable: %s", e.Variable)
}

// UnsupportedFileError marks a file whose declared feature type this
// parser does not ingest (trajectory files).
type UnsupportedFileError struct {
	FeatureType string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("unsupported file: feature type %q is not a profile file", e.FeatureType)
}

// MalformedFileError wraps any structural decode failure (truncated
// read, bad magic, inconsistent lengths) below the variable-presence
// and feature-type checks.
type MalformedFileError struct {
	Reason string
	Cause  error
}

func (e *MalformedFileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed file: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed file: %s", e.Reason)
}

func (e *MalformedFileError) Unwrap() error { return e.Cause }
