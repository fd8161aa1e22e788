// Package config loads service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by the storage and session sections.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
	BackendHybrid   = "hybrid"
	BackendRedis    = "redis"
)

// Model providers.
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Assembler AssemblerConfig `koanf:"assembler"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Model     ModelConfig     `koanf:"model"`
	Session   SessionConfig   `koanf:"session"`
	Storage   StorageConfig   `koanf:"storage"`
	Audit     AuditConfig     `koanf:"audit"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AssemblerConfig bounds how much data goes into one context snapshot.
type AssemblerConfig struct {
	MaxRecordsPerCategory int           `koanf:"max_records_per_category"`
	Lookback              time.Duration `koanf:"lookback"`
	FetchTimeout          time.Duration `koanf:"fetch_timeout"`
	DisableHints          bool          `koanf:"disable_hints"`
}

// WorkflowConfig controls the insight workflow stages.
type WorkflowConfig struct {
	SynthesisAttempts int           `koanf:"synthesis_attempts"`
	Backoff           time.Duration `koanf:"backoff"`
	ModelTimeout      time.Duration `koanf:"model_timeout"`
	MaxTokens         int           `koanf:"max_tokens"`
	ProjectionMonths  int           `koanf:"projection_months"`
}

type ModelConfig struct {
	Provider   string  `koanf:"provider"`
	Name       string  `koanf:"name"`
	APIVersion string  `koanf:"api_version"`
	RateLimit  float64 `koanf:"rate_limit"`
	Burst      int     `koanf:"burst"`
}

// SessionConfig selects where chat history lives.
type SessionConfig struct {
	Backend   string        `koanf:"backend"`
	Window    int           `koanf:"window"`
	TTL       time.Duration `koanf:"ttl"`
	RedisAddr string        `koanf:"redis_addr"`
}

// StorageConfig selects the grant store and record repository backends.
type StorageConfig struct {
	Grants          string `koanf:"grants"`
	Records         string `koanf:"records"`
	PostgresDSN     string `koanf:"postgres_dsn"`
	BigQueryProject string `koanf:"bigquery_project"`
	BigQueryDataset string `koanf:"bigquery_dataset"`
	RecordsFile     string `koanf:"records_file"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
}

// AuditConfig controls asynchronous insight-run recording.
type AuditConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BigQuery   bool          `koanf:"bigquery"`
	GCSBucket  string        `koanf:"gcs_bucket"`
	QueueSize  int           `koanf:"queue_size"`
	Workers    int           `koanf:"workers"`
	MaxRetries int           `koanf:"max_retries"`
	Backoff    time.Duration `koanf:"backoff"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Assembler.MaxRecordsPerCategory == 0 {
		cfg.Assembler.MaxRecordsPerCategory = 200
	}
	if cfg.Assembler.Lookback == 0 {
		cfg.Assembler.Lookback = 365 * 24 * time.Hour
	}
	if cfg.Assembler.FetchTimeout == 0 {
		cfg.Assembler.FetchTimeout = 10 * time.Second
	}

	if cfg.Workflow.SynthesisAttempts == 0 {
		cfg.Workflow.SynthesisAttempts = 2
	}
	if cfg.Workflow.Backoff == 0 {
		cfg.Workflow.Backoff = 500 * time.Millisecond
	}
	if cfg.Workflow.ModelTimeout == 0 {
		cfg.Workflow.ModelTimeout = 30 * time.Second
	}
	if cfg.Workflow.MaxTokens == 0 {
		cfg.Workflow.MaxTokens = 1024
	}
	if cfg.Workflow.ProjectionMonths == 0 {
		cfg.Workflow.ProjectionMonths = 6
	}

	if cfg.Model.Provider == "" {
		cfg.Model.Provider = ProviderGemini
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "gemini-2.5-flash"
	}
	if cfg.Model.APIVersion == "" {
		cfg.Model.APIVersion = "v1"
	}
	if cfg.Model.RateLimit == 0 {
		cfg.Model.RateLimit = 5
	}
	if cfg.Model.Burst == 0 {
		cfg.Model.Burst = 2
	}

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = BackendMemory
	}
	if cfg.Session.Window == 0 {
		cfg.Session.Window = 10
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}

	if cfg.Storage.Grants == "" {
		cfg.Storage.Grants = BackendMemory
	}
	if cfg.Storage.Records == "" {
		cfg.Storage.Records = BackendMemory
	}
	if cfg.Storage.BigQueryDataset == "" {
		cfg.Storage.BigQueryDataset = "finance"
	}

	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = 100
	}
	if cfg.Audit.Workers == 0 {
		cfg.Audit.Workers = 2
	}
	if cfg.Audit.MaxRetries == 0 {
		cfg.Audit.MaxRetries = 3
	}
	if cfg.Audit.Backoff == 0 {
		cfg.Audit.Backoff = time.Second
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Assembler.MaxRecordsPerCategory < 1 {
		errs = append(errs, fmt.Errorf("assembler.max_records_per_category must be positive"))
	}
	if c.Workflow.SynthesisAttempts < 1 {
		errs = append(errs, fmt.Errorf("workflow.synthesis_attempts must be at least 1"))
	}
	if c.Session.Window < 1 {
		errs = append(errs, fmt.Errorf("session.window must be at least 1"))
	}

	switch c.Model.Provider {
	case ProviderGemini, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("model.provider %q not supported", c.Model.Provider))
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("session.redis_addr is required for redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q not supported", c.Session.Backend))
	}

	switch c.Storage.Grants {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres_dsn is required for postgres grants"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.grants %q not supported", c.Storage.Grants))
	}

	switch c.Storage.Records {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres_dsn is required for postgres records"))
		}
	case BackendBigQuery:
		if c.Storage.BigQueryProject == "" {
			errs = append(errs, fmt.Errorf("storage.bigquery_project is required for bigquery records"))
		}
	case BackendHybrid:
		if c.Storage.PostgresDSN == "" || c.Storage.BigQueryProject == "" {
			errs = append(errs, fmt.Errorf("hybrid records need both storage.postgres_dsn and storage.bigquery_project"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.records %q not supported", c.Storage.Records))
	}

	if c.Audit.Enabled && c.Audit.BigQuery && c.Storage.BigQueryProject == "" {
		errs = append(errs, fmt.Errorf("audit.bigquery requires storage.bigquery_project"))
	}

	return errors.Join(errs...)
}
