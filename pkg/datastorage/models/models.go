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

// Package models holds the row structs every repository in
// pkg/datastorage/repository scans into and out of, mirroring the
// entities named in the data model: floats, datasets, profiles,
// measurements, float positions, ingestion jobs, ocean regions,
// embeddings, and conversation turns.
package models

import (
	"time"

	"github.com/google/uuid"
)

// FloatType distinguishes the three ARGO float classes that drive
// which variables a profile is expected to carry.
type FloatType string

const (
	FloatTypeCore FloatType = "core"
	FloatTypeBGC  FloatType = "bgc"
	FloatTypeDeep FloatType = "deep"
)

// DataMode is the ARGO real-time/delayed-mode/adjusted marker carried
// on every profile.
type DataMode string

const (
	DataModeRealtime DataMode = "R"
	DataModeAdjusted DataMode = "A"
	DataModeDelayed  DataMode = "D"
)

// JobStatus is the ingestion job state machine's current state.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// EmbeddingStatus marks whether the indexer successfully produced a
// vector for a dataset or float.
type EmbeddingStatus string

const (
	EmbeddingStatusIndexed        EmbeddingStatus = "indexed"
	EmbeddingStatusEmbeddingFailed EmbeddingStatus = "embedding_failed"
)

// Float is identified by platform_number; one row regardless of how
// many files mention it.
type Float struct {
	PlatformNumber     string     `db:"platform_number"`
	WMOIdentifier      string     `db:"wmo_identifier"`
	FloatType          FloatType  `db:"float_type"`
	DeploymentTime     *time.Time `db:"deployment_time"`
	DeploymentLatitude *float64   `db:"deployment_latitude"`
	DeploymentLongitude *float64  `db:"deployment_longitude"`
	Program            string     `db:"program"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// Dataset is one row per ingested file, versioned per logical dataset.
type Dataset struct {
	ID              uuid.UUID  `db:"id"`
	Name            string     `db:"name"`
	SourceFilename  string     `db:"source_filename"`
	ObjectStoreKey  string     `db:"object_store_key"`
	IngestedAt      time.Time  `db:"ingested_at"`
	DateRangeStart  *time.Time `db:"date_range_start"`
	DateRangeEnd    *time.Time `db:"date_range_end"`
	BoundingPolygon *string    `db:"bounding_polygon"` // WKT, nil until the summarizer runs
	FloatCount      int        `db:"float_count"`
	ProfileCount    int        `db:"profile_count"`
	VariableList    []string   `db:"-"`
	Summary         *string    `db:"summary"`
	IsActive        bool       `db:"is_active"`
	DatasetVersion  int        `db:"dataset_version"`
}

// Profile is one row per (platform_number, cycle_number).
type Profile struct {
	ID               uuid.UUID `db:"id"`
	PlatformNumber   string    `db:"platform_number"`
	CycleNumber      int       `db:"cycle_number"`
	DatasetID        uuid.UUID `db:"dataset_id"`
	JulianDay        float64   `db:"julian_day"`
	Timestamp        *time.Time `db:"timestamp"`
	TimestampMissing bool      `db:"timestamp_missing"`
	Latitude         float64   `db:"latitude"`
	Longitude        float64   `db:"longitude"`
	PositionInvalid  bool      `db:"position_invalid"`
	DataMode         DataMode  `db:"data_mode"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Measurement is one row per depth level within a profile. QC flags
// decode to an integer 0..9 per spec.md §4.2 (never raw-cast from the
// byte).
type Measurement struct {
	ID                uuid.UUID `db:"id"`
	ProfileID         uuid.UUID `db:"profile_id"`
	LevelIndex        int       `db:"level_index"`
	Pressure          *float64  `db:"pressure"`
	PressureQC        int       `db:"pressure_qc"`
	Temperature       *float64  `db:"temperature"`
	TemperatureQC     int       `db:"temperature_qc"`
	Salinity          *float64  `db:"salinity"`
	SalinityQC        int       `db:"salinity_qc"`
	DissolvedOxygen   *float64  `db:"dissolved_oxygen"`
	DissolvedOxygenQC int       `db:"dissolved_oxygen_qc"`
	Chlorophyll       *float64  `db:"chlorophyll"`
	ChlorophyllQC     int       `db:"chlorophyll_qc"`
	Nitrate           *float64  `db:"nitrate"`
	NitrateQC         int       `db:"nitrate_qc"`
	PH                *float64  `db:"ph"`
	PHQC              int       `db:"ph_qc"`
	Backscatter       *float64  `db:"backscatter"`
	BackscatterQC     int       `db:"backscatter_qc"`
	Irradiance        *float64  `db:"irradiance"`
	IrradianceQC      int       `db:"irradiance_qc"`
	IsOutlier         bool      `db:"is_outlier"`
}

// FloatPosition denormalizes the latest-known position of a (platform,
// cycle) pair for fast map bounding-box queries.
type FloatPosition struct {
	PlatformNumber string    `db:"platform_number"`
	CycleNumber    int       `db:"cycle_number"`
	Latitude       float64   `db:"latitude"`
	Longitude      float64   `db:"longitude"`
	Timestamp      *time.Time `db:"timestamp"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IngestionJob tracks one file's async processing lifecycle.
type IngestionJob struct {
	ID              uuid.UUID  `db:"id"`
	ObjectStoreKey  string     `db:"object_store_key"`
	Status          JobStatus  `db:"status"`
	ProgressPercent int        `db:"progress_percent"`
	ProfilesTotal   int        `db:"profiles_total"`
	ProfilesIngested int       `db:"profiles_ingested"`
	ErrorLog        *string    `db:"error_log"`
	RetryCount      int        `db:"retry_count"`
	DatasetID       *uuid.UUID `db:"dataset_id"`
	CreatedAt       time.Time  `db:"created_at"`
	StartedAt       *time.Time `db:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// OceanRegion is a named polygon, optionally nested under a parent
// basin, used both for region-scoped queries and reverse lookup.
type OceanRegion struct {
	ID       uuid.UUID  `db:"id"`
	Name     string     `db:"name"`
	ParentID *uuid.UUID `db:"parent_id"`
	Polygon  string     `db:"polygon"` // WKT
}

// DatasetEmbedding is one indexed vector per dataset, retaining the
// source text for debugging.
type DatasetEmbedding struct {
	DatasetID     uuid.UUID       `db:"dataset_id"`
	EmbeddedText  string          `db:"embedded_text"`
	Embedding     []float32       `db:"embedding"`
	Status        EmbeddingStatus `db:"status"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// FloatEmbedding is the float-level counterpart to DatasetEmbedding.
type FloatEmbedding struct {
	PlatformNumber string          `db:"platform_number"`
	EmbeddedText   string          `db:"embedded_text"`
	Embedding      []float32       `db:"embedding"`
	Status         EmbeddingStatus `db:"status"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// ConversationTurn is one exchange in a session's context store ring
// buffer: the question asked, the SQL generated (nil on a failure that
// exhausted every validation attempt), and how many rows it returned.
type ConversationTurn struct {
	Text       string    `json:"text"`
	SQL        *string   `json:"sql,omitempty"`
	RowCount   *int      `json:"row_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
