// Package metrics exposes Prometheus instrumentation for the rule
// evaluation engine: verdict counters by action and mode, per-tier rule
// match counters, an anomaly score histogram, rate limit breaches,
// dropped event records, and policy reload outcomes.
//
// The Collector registers everything against an injected registry so
// tests and embedders control metric lifecycles.
package metrics
