package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// client.endpoint must be an absolute http(s) URL if set.
	if c.Client.Endpoint != "" {
		u, err := url.Parse(c.Client.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.endpoint must be an http or https URL, got %q", c.Client.Endpoint))
		}
	}

	if c.Client.Timeout < 0 {
		errs = append(errs, fmt.Errorf("client.timeout must be >= 0, got %v", c.Client.Timeout))
	}

	if c.Client.DefaultModel == "" {
		errs = append(errs, fmt.Errorf("client.default_model is required"))
	}

	switch c.Storage.Type {
	case "memory":
		if c.Storage.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("storage.max_size must be > 0, got %d", c.Storage.MaxSize))
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
		if c.Storage.Postgres.MaxConns <= 0 {
			errs = append(errs, fmt.Errorf("storage.postgres.max_conns must be > 0, got %d", c.Storage.Postgres.MaxConns))
		}
	case "none":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"sqlite\", \"postgres\" or \"none\", got %q", c.Storage.Type))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.level must be TRACE, DEBUG, INFO, WARN or ERROR, got %q", c.Logging.Level))
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("observability.metrics.addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
