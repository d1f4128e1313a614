package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/groqchat/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, GROQ_CONFIG env, ./groqchat.yaml, $XDG_CONFIG_HOME/groqchat/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. GROQ_CONFIG environment variable
// 3. ./groqchat.yaml in the current directory
// 4. $XDG_CONFIG_HOME/groqchat/config.yaml (~/.config when unset)
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("GROQ_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{"groqchat.yaml"}
	if dir := userConfigDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "groqchat", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps GROQ_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Client.APIKey = v
	}
	if v := os.Getenv("GROQ_ENDPOINT"); v != "" {
		cfg.Client.Endpoint = v
	}
	if v := os.Getenv("GROQ_MODEL"); v != "" {
		cfg.Client.DefaultModel = v
	}
	if v := os.Getenv("GROQ_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("GROQ_STORAGE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("GROQ_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("GROQ_METRICS_ADDR"); v != "" {
		cfg.Observability.Metrics.Addr = v
		cfg.Observability.Metrics.Enabled = true
	}
	if v := os.Getenv("GROQ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GROQ_DEBUG"); v != "" {
		cfg.Logging.Debug = v
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// client.api_key_file -> client.api_key
	if cfg.Client.APIKeyFile != "" && cfg.Client.APIKey == "" {
		val, err := readSecretFile(cfg.Client.APIKeyFile)
		if err != nil {
			return fmt.Errorf("client.api_key_file: %w", err)
		}
		cfg.Client.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
