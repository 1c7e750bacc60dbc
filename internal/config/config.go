// Package config holds all issuenerd configuration: storage location,
// classifier rules, feedback weighting parameters, reconciliation
// scheduling, and retention windows. Everything downstream takes
// configuration explicitly; nothing else reads ambient process state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"issuenerd/internal/classify"
	"issuenerd/internal/feedback"
	"issuenerd/internal/outcome"
)

// Config holds all issuenerd configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Outcome store
	Store StoreConfig `yaml:"store"`

	// Category classifier rules, highest priority first. Empty means
	// the built-in defaults.
	ClassifierRules []classify.Rule `yaml:"classifier_rules"`

	// Feedback analyzer weighting parameters
	Feedback feedback.Params `yaml:"feedback"`

	// Reconciliation job
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Retention windows for archival and purge
	Retention RetentionConfig `yaml:"retention"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the outcome store.
type StoreConfig struct {
	// DatabasePath is the SQLite file holding attempt rows.
	DatabasePath string `yaml:"database_path"`

	// StrictTerminal makes re-recording a MERGED attempt an error
	// instead of a logged no-op.
	StrictTerminal bool `yaml:"strict_terminal"`
}

// ReconcileConfig configures the reconciliation job.
type ReconcileConfig struct {
	// MinResolvedAge skips attempts resolved more recently than this
	// window. Zero examines everything.
	MinResolvedAge string `yaml:"min_resolved_age"`

	// LookupTimeout bounds each external status lookup.
	LookupTimeout string `yaml:"lookup_timeout"`
}

// RetentionConfig configures archival of terminal attempts. Zero
// windows disable the corresponding step.
type RetentionConfig struct {
	ArchiveOlderThanDays int  `yaml:"archive_older_than_days"`
	PurgeOlderThanDays   int  `yaml:"purge_older_than_days"`
	VacuumDatabase       bool `yaml:"vacuum_database"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// LookbackWindow is how far back aggregation looks by default.
const LookbackWindow = 30 * 24 * time.Hour

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "issuenerd",
		Version: "1.0.0",

		Store: StoreConfig{
			DatabasePath:   "data/issuenerd.db",
			StrictTerminal: false,
		},

		Feedback: feedback.DefaultParams(),

		Reconcile: ReconcileConfig{
			MinResolvedAge: "0s",
			LookupTimeout:  "10s",
		},

		Retention: RetentionConfig{
			ArchiveOlderThanDays: 0,
			PurgeOlderThanDays:   0,
			VacuumDatabase:       false,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "issuenerd.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets deployment environments adjust settings
// without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ISSUENERD_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("ISSUENERD_STRICT_TERMINAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Store.StrictTerminal = b
		}
	}
	if v := os.Getenv("ISSUENERD_LOOKUP_TIMEOUT"); v != "" {
		c.Reconcile.LookupTimeout = v
	}
	if v := os.Getenv("ISSUENERD_MIN_RESOLVED_AGE"); v != "" {
		c.Reconcile.MinResolvedAge = v
	}
	if v := os.Getenv("ISSUENERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if _, err := c.MinResolvedAge(); err != nil {
		return fmt.Errorf("invalid reconcile.min_resolved_age: %w", err)
	}
	if _, err := c.LookupTimeout(); err != nil {
		return fmt.Errorf("invalid reconcile.lookup_timeout: %w", err)
	}
	if c.Retention.ArchiveOlderThanDays < 0 || c.Retention.PurgeOlderThanDays < 0 {
		return fmt.Errorf("retention windows must not be negative")
	}
	if c.Feedback.FullConfidenceSamples <= 0 || c.Feedback.ExponentScale <= 0 || c.Feedback.NeutralWeight <= 0 {
		return fmt.Errorf("feedback parameters must be positive")
	}
	if len(c.ClassifierRules) > 0 {
		if _, err := classify.New(c.ClassifierRules); err != nil {
			return fmt.Errorf("invalid classifier rules: %w", err)
		}
	}
	return nil
}

// Classifier builds the configured classifier, falling back to the
// built-in rules when none are configured.
func (c *Config) Classifier() (*classify.Classifier, error) {
	if len(c.ClassifierRules) == 0 {
		return classify.Default(), nil
	}
	return classify.New(c.ClassifierRules)
}

// Maintenance converts the retention settings into a store cleanup
// configuration.
func (c *Config) Maintenance() outcome.MaintenanceConfig {
	return outcome.MaintenanceConfig{
		ArchiveOlderThanDays: c.Retention.ArchiveOlderThanDays,
		PurgeOlderThanDays:   c.Retention.PurgeOlderThanDays,
		VacuumDatabase:       c.Retention.VacuumDatabase,
	}
}

// MinResolvedAge parses the reconciliation age window.
func (c *Config) MinResolvedAge() (time.Duration, error) {
	return parseDuration(c.Reconcile.MinResolvedAge, 0)
}

// LookupTimeout parses the per-lookup timeout.
func (c *Config) LookupTimeout() (time.Duration, error) {
	return parseDuration(c.Reconcile.LookupTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", s)
	}
	return d, nil
}
