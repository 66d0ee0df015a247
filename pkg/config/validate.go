package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for consistency. It returns the
// first group of problems found as one error.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.ListenAddress == "" {
		errs = append(errs, "server.listen_address must not be empty")
	}

	switch cfg.Policy.FailureAction {
	case "Block", "Allow", "Log":
	default:
		errs = append(errs, fmt.Sprintf("policy.failure_action must be Block, Allow or Log, got %q", cfg.Policy.FailureAction))
	}

	switch cfg.Limits.Store {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("limits.store must be memory or sqlite, got %q", cfg.Limits.Store))
	}
	if cfg.Limits.Store == "sqlite" && cfg.Limits.SQLitePath == "" {
		errs = append(errs, "limits.sqlite_path must be set for the sqlite store")
	}
	switch cfg.Limits.FailureMode {
	case "fail_open", "fail_closed":
	default:
		errs = append(errs, fmt.Sprintf("limits.failure_mode must be fail_open or fail_closed, got %q", cfg.Limits.FailureMode))
	}
	if cfg.Limits.SweepInterval < 0 {
		errs = append(errs, "limits.sweep_interval must not be negative")
	}

	switch cfg.Events.Sink {
	case "log", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("events.sink must be log or sqlite, got %q", cfg.Events.Sink))
	}
	if cfg.Events.BufferSize < 0 {
		errs = append(errs, "events.buffer_size must not be negative")
	}
	if cfg.Events.Sink == "sqlite" && cfg.Events.SQLitePath == "" {
		errs = append(errs, "events.sqlite_path must be set for the sqlite sink")
	}

	switch strings.ToLower(cfg.Telemetry.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.logging.level is invalid: %q", cfg.Telemetry.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
