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

// Package config loads process configuration from a YAML file layered
// over built-in defaults, following the same Load/Validate shape used
// throughout this codebase for every subsystem config. Load itself reads
// no environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures an HTTP ingress (ingestion or query service).
type ServerConfig struct {
	Port            string        `yaml:"port"`
	MetricsPort     string        `yaml:"metrics_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	UploadDeadline  time.Duration `yaml:"upload_deadline"`
}

// DatabaseConfig configures one of the three Postgres roles (write,
// read-only, migration) described in spec.md §6.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DefaultDatabaseConfig mirrors the teacher's DefaultConfig() shape.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "argonaut",
		Database:        "argonaut",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overlays environment variables onto an existing config,
// silently keeping the prior value for any variable that fails to parse.
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv(prefix + "_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv(prefix + "_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv(prefix + "_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

// Validate checks the minimum fields required to dial Postgres.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("database port %d out of range", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name must not be empty")
	}
	return nil
}

// DSN renders a libpq-style connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LLMConfig configures one pluggable NL→SQL / summarization LLM provider.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Region         string        `yaml:"region"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxContextSize int           `yaml:"max_context_size"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
}

// ObjectStoreConfig configures the S3-compatible staging bucket.
type ObjectStoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// BrokerConfig configures the NATS JetStream job dispatch stream.
type BrokerConfig struct {
	URL         string `yaml:"url"`
	StreamName  string `yaml:"stream_name"`
	ConsumerName string `yaml:"consumer_name"`
}

// ContextStoreConfig configures the Redis-backed conversation memory.
type ContextStoreConfig struct {
	Addr        string        `yaml:"addr"`
	MaxTurns    int           `yaml:"max_turns"`
	RecentTurns int           `yaml:"recent_turns"`
	TTL         time.Duration `yaml:"ttl"`
}

// OrchestratorConfig configures retry/backoff and the stale-job sweeper.
type OrchestratorConfig struct {
	MaxRetries           int           `yaml:"max_retries"`
	InitialBackoff       time.Duration `yaml:"initial_backoff"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"`
	Workers              int           `yaml:"workers"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	StaleRunningThreshold time.Duration `yaml:"stale_running_threshold"`
	MeasurementBatchSize int           `yaml:"measurement_batch_size"`
}

// QueryConfig configures row caps, statement timeouts and the
// confirmation gate.
type QueryConfig struct {
	DefaultRowCap           int           `yaml:"default_row_cap"`
	AbsoluteRowCap          int           `yaml:"absolute_row_cap"`
	StatementTimeout        time.Duration `yaml:"statement_timeout"`
	ConfirmationRowThreshold int64        `yaml:"confirmation_row_threshold"`
	MaxValidationAttempts   int           `yaml:"max_validation_attempts"`
}

// OutlierBounds are the Cleaner's inclusive bounds per variable; see
// spec.md §4.3. Out-of-range values are flagged, never dropped.
type OutlierBounds struct {
	TemperatureMin     float64 `yaml:"temperature_min"`
	TemperatureMax     float64 `yaml:"temperature_max"`
	SalinityMin        float64 `yaml:"salinity_min"`
	SalinityMax        float64 `yaml:"salinity_max"`
	PressureMin        float64 `yaml:"pressure_min"`
	PressureMax        float64 `yaml:"pressure_max"`
	DissolvedOxygenMin float64 `yaml:"dissolved_oxygen_min"`
	DissolvedOxygenMax float64 `yaml:"dissolved_oxygen_max"`
	ChlorophyllMin     float64 `yaml:"chlorophyll_min"`
	ChlorophyllMax     float64 `yaml:"chlorophyll_max"`
	NitrateMin         float64 `yaml:"nitrate_min"`
	NitrateMax         float64 `yaml:"nitrate_max"`
	PHMin              float64 `yaml:"ph_min"`
	PHMax              float64 `yaml:"ph_max"`
}

// DefaultOutlierBounds returns the defaults from spec.md §4.3.
func DefaultOutlierBounds() OutlierBounds {
	return OutlierBounds{
		TemperatureMin: -2.5, TemperatureMax: 40,
		SalinityMin: 0, SalinityMax: 42,
		PressureMin: 0, PressureMax: 12000,
		DissolvedOxygenMin: 0, DissolvedOxygenMax: 600,
		ChlorophyllMin: 0, ChlorophyllMax: 100,
		NitrateMin: 0, NitrateMax: 50,
		PHMin: 7.0, PHMax: 8.5,
	}
}

// Config is the root process configuration, loaded once at startup.
type Config struct {
	Server            ServerConfig       `yaml:"server"`
	WriteDatabase     DatabaseConfig     `yaml:"write_database"`
	ReadOnlyDatabase  DatabaseConfig     `yaml:"readonly_database"`
	MigrationDatabase DatabaseConfig     `yaml:"migration_database"`
	ObjectStore       ObjectStoreConfig  `yaml:"object_store"`
	Broker            BrokerConfig       `yaml:"broker"`
	ContextStore      ContextStoreConfig `yaml:"context_store"`
	Orchestrator      OrchestratorConfig `yaml:"orchestrator"`
	Query             QueryConfig        `yaml:"query"`
	OutlierBounds     OutlierBounds      `yaml:"outlier_bounds"`
	OutlierBoundsFile string             `yaml:"outlier_bounds_file"`
	GeographyFile     string             `yaml:"geography_file"`
	LLMProviders      map[string]LLMConfig `yaml:"llm_providers"`
	DefaultLLMProvider string            `yaml:"default_llm_provider"`
}

// Load reads and parses a YAML config file over Default(), so any
// setting the file omits keeps its default, and then validates the
// result. No environment overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with the defaults named throughout
// spec.md, the base Load layers a YAML file over.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			MetricsPort:     "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  2 << 30, // 2 GiB
			UploadDeadline:  2 * time.Second,
		},
		WriteDatabase:     *DefaultDatabaseConfig(),
		ReadOnlyDatabase:  *DefaultDatabaseConfig(),
		MigrationDatabase: *DefaultDatabaseConfig(),
		Broker: BrokerConfig{
			URL:          "nats://localhost:4222",
			StreamName:   "INGEST_JOBS",
			ConsumerName: "ingestion-workers",
		},
		ContextStore: ContextStoreConfig{
			Addr:        "localhost:6379",
			MaxTurns:    10,
			RecentTurns: 3,
			TTL:         30 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:            3,
			InitialBackoff:        10 * time.Second,
			BackoffMultiplier:     3.0,
			Workers:               4,
			SweepInterval:         5 * time.Minute,
			StaleRunningThreshold: 30 * time.Minute,
			MeasurementBatchSize:  1000,
		},
		Query: QueryConfig{
			DefaultRowCap:            10_000,
			AbsoluteRowCap:           100_000,
			StatementTimeout:         30 * time.Second,
			ConfirmationRowThreshold: 50_000,
			MaxValidationAttempts:    3,
		},
		OutlierBounds:      DefaultOutlierBounds(),
		DefaultLLMProvider: "anthropic",
		LLMProviders:       map[string]LLMConfig{},
	}
}

// Validate checks cross-cutting invariants that YAML unmarshalling
// cannot enforce on its own.
func (c *Config) Validate() error {
	if err := c.WriteDatabase.Validate(); err != nil {
		return fmt.Errorf("write_database: %w", err)
	}
	if err := c.ReadOnlyDatabase.Validate(); err != nil {
		return fmt.Errorf("readonly_database: %w", err)
	}
	if c.Query.DefaultRowCap > c.Query.AbsoluteRowCap {
		return fmt.Errorf("query.default_row_cap (%d) exceeds query.absolute_row_cap (%d)",
			c.Query.DefaultRowCap, c.Query.AbsoluteRowCap)
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries must be >= 0")
	}
	return nil
}
