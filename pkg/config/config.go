package config

import "time"

// Config is the root configuration structure for Bastion.
type Config struct {
	// Server contains the admin HTTP server configuration (metrics,
	// health, policy endpoints).
	Server ServerConfig `yaml:"server"`

	// Policy contains the policy source configuration.
	Policy PolicyConfig `yaml:"policy"`

	// Catalog contains managed rule catalog locations.
	Catalog CatalogConfig `yaml:"catalog"`

	// Geo contains GeoIP resolution configuration.
	Geo GeoConfig `yaml:"geo"`

	// Limits contains rate limit store configuration.
	Limits LimitsConfig `yaml:"limits"`

	// Events contains event emitter and sink configuration.
	Events EventsConfig `yaml:"events"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains the admin HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PolicyConfig contains the policy source configuration.
type PolicyConfig struct {
	// Path is the policy document file (YAML or JSON).
	Path string `yaml:"path"`

	// Watch enables hot reload on file changes. Default: true
	Watch *bool `yaml:"watch"`

	// FailureAction is the verdict action on irrecoverable evaluation
	// faults. Default: Block
	FailureAction string `yaml:"failure_action"`

	// EmitExcludedMatches reports exclusion-suppressed matches as audit
	// events. Default: true
	EmitExcludedMatches *bool `yaml:"emit_excluded_matches"`
}

// CatalogConfig contains managed rule catalog locations.
type CatalogConfig struct {
	// Paths lists catalog files or directories to load.
	Paths []string `yaml:"paths"`
}

// GeoConfig contains GeoIP resolution configuration.
type GeoConfig struct {
	// DatabasePath is the MaxMind country database file. Empty disables
	// resolution; GeoMatch then relies on the country supplied by the
	// caller.
	DatabasePath string `yaml:"database_path"`
}

// LimitsConfig contains rate limit store configuration.
type LimitsConfig struct {
	// Store is "memory" (default) or "sqlite". The sqlite store keeps
	// window state across restarts.
	Store string `yaml:"store"`

	// SQLitePath is the rate limit database file (sqlite store).
	SQLitePath string `yaml:"sqlite_path"`

	// FailureMode is "fail_open" (default) or "fail_closed".
	FailureMode string `yaml:"failure_mode"`

	// SweepInterval is how often stale keys are evicted. Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// IdleRetention is how long an inactive key is kept. Default: 10m
	IdleRetention time.Duration `yaml:"idle_retention"`
}

// EventsConfig contains event emitter and sink configuration.
type EventsConfig struct {
	// Sink is "log" (default) or "sqlite".
	Sink string `yaml:"sink"`

	// BufferSize is the emitter queue size. Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// SQLitePath is the event database file (sqlite sink).
	// Default: "bastion-events.db"
	SQLitePath string `yaml:"sqlite_path"`

	// Retention configures pruning of stored events (sqlite sink).
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig configures event pruning.
type RetentionConfig struct {
	// MaxAge is how long events are kept. Default: 720h (30 days)
	MaxAge time.Duration `yaml:"max_age"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Empty disables scheduled pruning. Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error". Default: "info"
	Level string `yaml:"level"`

	// Format is "json" (default) or "text".
	Format string `yaml:"format"`

	// AddSource includes file and line number in logs.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns metric collection on. Default: true
	Enabled *bool `yaml:"enabled"`

	// Namespace is the metric namespace. Default: "bastion"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem. Default: "waf"
	Subsystem string `yaml:"subsystem"`
}
