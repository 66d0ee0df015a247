package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies BASTION_SECTION_FIELD environment variable overrides, which
// always take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("BASTION_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("BASTION_POLICY_PATH"); val != "" {
		cfg.Policy.Path = val
	}
	if val := os.Getenv("BASTION_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = &b
		}
	}
	if val := os.Getenv("BASTION_POLICY_FAILURE_ACTION"); val != "" {
		cfg.Policy.FailureAction = val
	}
	if val := os.Getenv("BASTION_GEO_DATABASE_PATH"); val != "" {
		cfg.Geo.DatabasePath = val
	}
	if val := os.Getenv("BASTION_LIMITS_STORE"); val != "" {
		cfg.Limits.Store = val
	}
	if val := os.Getenv("BASTION_LIMITS_SQLITE_PATH"); val != "" {
		cfg.Limits.SQLitePath = val
	}
	if val := os.Getenv("BASTION_LIMITS_FAILURE_MODE"); val != "" {
		cfg.Limits.FailureMode = val
	}
	if val := os.Getenv("BASTION_EVENTS_SINK"); val != "" {
		cfg.Events.Sink = val
	}
	if val := os.Getenv("BASTION_EVENTS_SQLITE_PATH"); val != "" {
		cfg.Events.SQLitePath = val
	}
	if val := os.Getenv("BASTION_EVENTS_RETENTION_MAX_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Events.Retention.MaxAge = d
		}
	}
	if val := os.Getenv("BASTION_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("BASTION_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("BASTION_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
}
