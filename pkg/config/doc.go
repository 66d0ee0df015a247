// Package config defines the root configuration for the Bastion runtime:
// the admin server, the policy source, catalog paths, the rate limit
// store, event sinks and retention, and telemetry. Configuration is
// loaded from YAML, defaulted, optionally overridden from BASTION_*
// environment variables, and validated before use.
package config
