// Package config provides configuration loading and management for the
// catalog sync service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is left empty.
const (
	DefaultListenAddr          = ":8080"
	DefaultBatchSize           = 100
	DefaultQueueWorkers        = 4
	DefaultBaseDelay           = 0 * time.Second
	DefaultStepDelay           = 15 * time.Second
	DefaultMaxBatchAttempts    = 3
	DefaultOrphanRetryInterval = 30 * time.Second
	DefaultOrphanMaxAttempts   = 3
	DefaultRemoteTimeout       = 30 * time.Second
	DefaultWorkerDeadline      = 5 * time.Minute
	DefaultEnumerationBudget   = 2 * time.Minute
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ListenAddr is the HTTP listen address for the API server
	// Defaults to ":8080" if not specified
	ListenAddr string `yaml:"listenAddr,omitempty"`

	// Source configures the authoritative inventory source
	Source SourceConfig `yaml:"source"`

	// Database configures the target catalog store; when nil the in-memory
	// store is used
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Queue configures the task queue workers
	Queue QueueConfig `yaml:"queue,omitempty"`

	// Pipeline configures batching, pacing and retry budgets
	Pipeline PipelineConfig `yaml:"pipeline,omitempty"`

	// Telemetry configures Prometheus metrics exposure
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	// Merchants lists the merchants this instance reconciles
	Merchants []MerchantConfig `yaml:"merchants"`
}

// SourceConfig defines the authoritative source endpoint settings
type SourceConfig struct {
	// Endpoint is the base URL of the inventory API
	Endpoint string `yaml:"endpoint"`

	// PageSize bounds full-catalog enumeration pages
	PageSize int `yaml:"pageSize,omitempty"`

	// Timeout is the per-call wall-clock budget (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Password is the database password used when PasswordFile is not set;
	// the CATALOG_SYNC_DB_PASSWORD environment variable takes precedence
	Password string `yaml:"password,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode controls TLS for the connection (defaults to "require")
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns bounds the connection pool
	MaxOpenConns int `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns bounds idle pooled connections
	MaxIdleConns int `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum connection lifetime (e.g. "5m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// envDBPassword overrides the configured database password when set.
const envDBPassword = "CATALOG_SYNC_DB_PASSWORD"

// GetPassword resolves the database password using a priority order:
// password file, environment variable, then inline configuration.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(d.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if pw := os.Getenv(envDBPassword); pw != "" {
		return pw, nil
	}
	return d.Password, nil
}

// QueueConfig defines task queue worker settings
type QueueConfig struct {
	// Workers is the number of concurrent task consumers
	Workers int `yaml:"workers,omitempty"`
}

// PipelineConfig defines batching, pacing and retry settings
type PipelineConfig struct {
	// BatchSize is the maximum number of items per sync batch
	BatchSize int `yaml:"batchSize,omitempty"`

	// BaseDelay is the dispatch delay of the first batch (e.g. "0s")
	BaseDelay string `yaml:"baseDelay,omitempty"`

	// StepDelay is the additional delay per subsequent batch (e.g. "15s")
	StepDelay string `yaml:"stepDelay,omitempty"`

	// MaxBatchAttempts is the delivery attempt budget per batch task
	MaxBatchAttempts int `yaml:"maxBatchAttempts,omitempty"`

	// OrphanRetryInterval is the re-check cadence for deferred variants
	OrphanRetryInterval string `yaml:"orphanRetryInterval,omitempty"`

	// OrphanMaxAttempts bounds re-checks before an orphan is escalated
	OrphanMaxAttempts int `yaml:"orphanMaxAttempts,omitempty"`

	// WorkerDeadline is the execution-time ceiling for one batch task;
	// the unprocessed remainder is re-enqueued as a continuation
	WorkerDeadline string `yaml:"workerDeadline,omitempty"`

	// EnumerationBudget bounds a full-catalog enumeration pass
	EnumerationBudget string `yaml:"enumerationBudget,omitempty"`
}

// TelemetryConfig defines metrics exposure settings
type TelemetryConfig struct {
	// Enabled controls whether Prometheus metrics are registered and served
	Enabled bool `yaml:"enabled"`
}

// MerchantConfig defines a single merchant this instance reconciles
type MerchantConfig struct {
	// ID is the merchant identifier; item natural ids are unique within it
	ID string `yaml:"id"`

	// LicenseActive gates all sync work for the merchant
	LicenseActive bool `yaml:"licenseActive"`

	// APIKey authenticates calls to the merchant's storefront
	APIKey string `yaml:"apiKey,omitempty"`

	// WarehouseID filters authoritative stock rows; an empty value sums
	// stock across all warehouses
	WarehouseID string `yaml:"warehouseId,omitempty"`

	// EnabledFields toggles which fields updates may touch
	EnabledFields FieldToggles `yaml:"enabledFields,omitempty"`
}

// FieldToggles controls which item fields an update is allowed to modify.
// Inserts always write the full item.
type FieldToggles struct {
	Name  bool `yaml:"name"`
	Price bool `yaml:"price"`
	Stock bool `yaml:"stock"`
}

// MerchantSnapshot is an immutable copy of a merchant's configuration,
// captured once per batch and passed by value into the worker so a batch
// never observes a mid-flight configuration change.
type MerchantSnapshot struct {
	MerchantID    string
	LicenseActive bool
	APIKey        string
	WarehouseID   string
	EnabledFields FieldToggles
}

// Snapshot captures the merchant configuration as an immutable value.
func (m *MerchantConfig) Snapshot() MerchantSnapshot {
	return MerchantSnapshot{
		MerchantID:    m.ID,
		LicenseActive: m.LicenseActive,
		APIKey:        m.APIKey,
		WarehouseID:   m.WarehouseID,
		EnabledFields: m.EnabledFields,
	}
}

// Merchant returns the configuration for the given merchant id, or nil when
// the merchant is unknown to this instance.
func (c *Config) Merchant(merchantID string) *MerchantConfig {
	for i := range c.Merchants {
		if c.Merchants[i].ID == merchantID {
			return &c.Merchants[i]
		}
	}
	return nil
}

// Load reads, parses and validates configuration
func Load(opts ...Option) (*Config, error) {
	loader := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loader); err != nil {
			return nil, err
		}
	}
	if loader.path == "" {
		return nil, fmt.Errorf("no configuration source specified")
	}

	data, err := os.ReadFile(loader.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = DefaultQueueWorkers
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = DefaultBatchSize
	}
	if c.Pipeline.MaxBatchAttempts == 0 {
		c.Pipeline.MaxBatchAttempts = DefaultMaxBatchAttempts
	}
	if c.Pipeline.OrphanMaxAttempts == 0 {
		c.Pipeline.OrphanMaxAttempts = DefaultOrphanMaxAttempts
	}
}

// Validate checks the configuration for structural problems. Duration
// strings are parsed here so a malformed value fails at startup rather
// than mid-batch.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline batch size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be positive, got %d", c.Queue.Workers)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"source.timeout", c.Source.Timeout},
		{"pipeline.baseDelay", c.Pipeline.BaseDelay},
		{"pipeline.stepDelay", c.Pipeline.StepDelay},
		{"pipeline.orphanRetryInterval", c.Pipeline.OrphanRetryInterval},
		{"pipeline.workerDeadline", c.Pipeline.WorkerDeadline},
		{"pipeline.enumerationBudget", c.Pipeline.EnumerationBudget},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}
	seen := make(map[string]bool, len(c.Merchants))
	for _, m := range c.Merchants {
		if m.ID == "" {
			return fmt.Errorf("merchant id is required")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate merchant id: %s", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// duration parses a duration string, falling back to def when empty or
// malformed. Validate has already rejected malformed values at load time.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// BaseDelayDuration returns the parsed base dispatch delay.
func (p *PipelineConfig) BaseDelayDuration() time.Duration {
	return duration(p.BaseDelay, DefaultBaseDelay)
}

// StepDelayDuration returns the parsed per-batch step delay.
func (p *PipelineConfig) StepDelayDuration() time.Duration {
	return duration(p.StepDelay, DefaultStepDelay)
}

// OrphanRetryIntervalDuration returns the parsed orphan re-check cadence.
func (p *PipelineConfig) OrphanRetryIntervalDuration() time.Duration {
	return duration(p.OrphanRetryInterval, DefaultOrphanRetryInterval)
}

// WorkerDeadlineDuration returns the parsed batch execution ceiling.
func (p *PipelineConfig) WorkerDeadlineDuration() time.Duration {
	return duration(p.WorkerDeadline, DefaultWorkerDeadline)
}

// EnumerationBudgetDuration returns the parsed enumeration time budget.
func (p *PipelineConfig) EnumerationBudgetDuration() time.Duration {
	return duration(p.EnumerationBudget, DefaultEnumerationBudget)
}

// TimeoutDuration returns the parsed per-call source timeout.
func (s *SourceConfig) TimeoutDuration() time.Duration {
	return duration(s.Timeout, DefaultRemoteTimeout)
}
