// Package config provides unified configuration for groqchat.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (GROQ_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultModel is used when neither the config nor the command line names
// a model.
const DefaultModel = "llama3-8b-8192"

// Config holds all configuration for groqchat.
type Config struct {
	Client        ClientConfig        `yaml:"client"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ClientConfig holds settings for the completion client.
type ClientConfig struct {
	APIKey       string        `yaml:"api_key"`
	APIKeyFile   string        `yaml:"api_key_file"`  // _file variant for api_key
	Endpoint     string        `yaml:"endpoint"`      // empty means the Groq endpoint
	Timeout      time.Duration `yaml:"timeout"`       // buffered calls only, 0 disables
	DefaultModel string        `yaml:"default_model"` // default: llama3-8b-8192
}

// StorageConfig holds conversation history settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "sqlite", "postgres" or "none", default: "sqlite"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: $XDG_DATA_HOME/groqchat/history.db
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 5
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // TRACE, DEBUG, INFO, WARN or ERROR, default: INFO
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Addr    string `yaml:"addr"`    // default: "127.0.0.1:9464"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Client: ClientConfig{
			DefaultModel: DefaultModel,
		},
		Storage: StorageConfig{
			Type:    "sqlite",
			MaxSize: 1000,
			SQLite: SQLiteConfig{
				Path: defaultSQLitePath(),
			},
			Postgres: PostgresConfig{
				MaxConns:       5,
				MigrateOnStart: true,
			},
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Addr: "127.0.0.1:9464",
			},
		},
	}
}

func defaultSQLitePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "groqchat-history.db"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "groqchat", "history.db")
}
