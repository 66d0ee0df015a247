// Package catalog loads and indexes managed rule sets: the versioned,
// read-only reference data containing the actual rule bodies (patterns,
// severities, target attributes) that a policy's managed rule set
// references point at.
//
// Catalogs are data, not code. They are loaded once from YAML files,
// compiled (every pattern compiles up front, a bad pattern fails the
// load), and then treated as immutable by the engine. Updating detection
// content means shipping a new catalog file, not touching the engine.
//
// Lookup is keyed by (ruleSetType, version, ruleId). A rule set may be
// flagged as a bot protection set, which the engine evaluates in its own
// short-circuiting tier ahead of scored rule sets.
package catalog
