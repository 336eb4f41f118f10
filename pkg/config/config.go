// Package config loads the YAML configuration of the routing host.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/block/shardwasm/pkg/host"
	"github.com/block/shardwasm/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// Config represents the complete host configuration
type Config struct {
	Version  string         `yaml:"version"`
	Guest    GuestConfig    `yaml:"guest"`
	Sharding ShardingConfig `yaml:"sharding"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GuestConfig defines where the sharding module lives and how many
// instances of it to run.
type GuestConfig struct {
	Path      string `yaml:"path"`
	Instances int    `yaml:"instances"`
}

// ShardingConfig defines the sharding column and the physical tables of
// each logical table. Every table list must have shard_count entries.
type ShardingConfig struct {
	Column     string              `yaml:"column"`
	ShardCount int                 `yaml:"shard_count"`
	Tables     map[string][]string `yaml:"tables,omitempty"`
}

// DatabaseConfig defines the MySQL server routed statements run on.
// DSN takes precedence over ConfFile.
type DatabaseConfig struct {
	DSN        string `yaml:"dsn,omitempty"`
	ConfFile   string `yaml:"conf_file,omitempty"`
	MaxRetries int    `yaml:"max_retries"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid and fills in defaults.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Guest.Path == "" {
		return fmt.Errorf("guest.path is required")
	}
	if c.Sharding.Column == "" {
		return fmt.Errorf("sharding.column is required")
	}

	// Set defaults
	if c.Guest.Instances == 0 {
		c.Guest.Instances = 4
	}
	if c.Sharding.ShardCount == 0 {
		c.Sharding.ShardCount = 3
	}
	if c.Database.MaxRetries == 0 {
		c.Database.MaxRetries = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Guest.Instances < 0 {
		return fmt.Errorf("guest.instances must be positive, got %d", c.Guest.Instances)
	}
	if c.Sharding.ShardCount < 0 || c.Sharding.ShardCount > 255 {
		return fmt.Errorf("sharding.shard_count must be between 1 and 255, got %d", c.Sharding.ShardCount)
	}
	for table, targets := range c.Sharding.Tables {
		if len(targets) != c.Sharding.ShardCount {
			return fmt.Errorf("sharding.tables.%s has %d targets, shard_count is %d", table, len(targets), c.Sharding.ShardCount)
		}
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported logging.format: %s", c.Logging.Format)
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return l, fmt.Errorf("unsupported logging.level: %s", level)
	}
	return l, nil
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Logging.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// HostConfig converts the configuration into a host.Config.
func (c *Config) HostConfig(logger *slog.Logger, sink metrics.Sink) *host.Config {
	return &host.Config{
		ShardCount:  c.Sharding.ShardCount,
		Targets:     c.Sharding.Tables,
		Instances:   c.Guest.Instances,
		Logger:      logger,
		MetricsSink: sink,
	}
}
