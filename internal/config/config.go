// Package config loads runtime configuration from a YAML file, environment
// variables and defaults, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	SchemaDir string        `mapstructure:"schema_dir"`
	Journal   JournalConfig `mapstructure:"journal"`
	Cache     CacheConfig   `mapstructure:"cache"`
	Watch     WatchConfig   `mapstructure:"watch"`
	Logging   LoggingConfig `mapstructure:"logging"`
}

// JournalConfig configures the SQLite edit journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CacheConfig configures the in-memory summary cache.
type CacheConfig struct {
	SummaryEntries int `mapstructure:"summary_entries"`
}

// WatchConfig configures the schema directory watcher.
type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads and holds the configuration.
type Manager struct {
	config *Config
	v      *viper.Viper
}

// NewManager creates a configuration manager. A missing config file is not
// an error; defaults and environment variables apply.
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults.
func (m *Manager) loadConfig() error {
	m.v.SetConfigName("config")
	m.v.SetConfigType("yaml")
	m.v.AddConfigPath(".")
	m.v.AddConfigPath("./config")
	m.v.AddConfigPath("/etc/medixtract-review/")

	m.v.SetEnvPrefix("MEDIXTRACT")
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	m.setDefaults()

	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	m.v.SetDefault("schema_dir", "./Schema_Versions")

	m.v.SetDefault("journal.enabled", true)
	m.v.SetDefault("journal.path", "./data/journal.db")

	m.v.SetDefault("cache.summary_entries", 256)

	m.v.SetDefault("watch.enabled", false)

	m.v.SetDefault("logging.level", "info")
	m.v.SetDefault("logging.format", "text")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.SchemaDir == "" {
		return fmt.Errorf("schema_dir is required")
	}
	if config.Journal.Enabled && config.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if config.Cache.SummaryEntries < 0 {
		return fmt.Errorf("cache.summary_entries must not be negative: %d", config.Cache.SummaryEntries)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// NewLogger builds a logrus logger from the logging configuration.
func (m *Manager) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(m.config.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(m.config.Logging.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
