package config

import "time"

// ApplyDefaults fills unset fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:9090"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Policy.Watch == nil {
		watch := true
		cfg.Policy.Watch = &watch
	}
	if cfg.Policy.FailureAction == "" {
		cfg.Policy.FailureAction = "Block"
	}
	if cfg.Policy.EmitExcludedMatches == nil {
		emit := true
		cfg.Policy.EmitExcludedMatches = &emit
	}

	if cfg.Limits.Store == "" {
		cfg.Limits.Store = "memory"
	}
	if cfg.Limits.FailureMode == "" {
		cfg.Limits.FailureMode = "fail_open"
	}
	if cfg.Limits.SweepInterval == 0 {
		cfg.Limits.SweepInterval = time.Minute
	}
	if cfg.Limits.IdleRetention == 0 {
		cfg.Limits.IdleRetention = 10 * time.Minute
	}

	if cfg.Events.Sink == "" {
		cfg.Events.Sink = "log"
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1000
	}
	if cfg.Events.SQLitePath == "" {
		cfg.Events.SQLitePath = "bastion-events.db"
	}
	if cfg.Events.Retention.MaxAge == 0 {
		cfg.Events.Retention.MaxAge = 720 * time.Hour
	}
	if cfg.Events.Retention.PruneSchedule == "" {
		cfg.Events.Retention.PruneSchedule = "0 3 * * *"
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		enabled := true
		cfg.Telemetry.Metrics.Enabled = &enabled
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "bastion"
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = "waf"
	}
}
