// Package ratelimit implements the keyed sliding-window rate limiter used
// by rate limit rules. Counts are tracked per (rule, group-by key) in a
// pluggable Store; the in-memory store shards keys across locks so that
// different keys do not contend while increments on one key never lose
// updates. The SQLite store persists window state across restarts for
// single-instance deployments.
//
// Rate limiting is a secondary defense, not the primary security
// boundary: on store failure the limiter fails open by default (the
// request is not counted and not breached), configurable to fail closed.
//
// Entries with no activity for longer than their window are evicted by a
// background sweep to bound memory.
package ratelimit
