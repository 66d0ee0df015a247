// Package events produces the structured verdict and audit records the
// engine hands to its logging collaborator.
//
// The Emitter is fire-and-forget: records go into a bounded queue drained
// by a background worker, so the evaluation path never blocks on a sink.
// When the queue is full the oldest queued record is dropped and a drop
// counter incremented; evaluation is never stalled or crashed by a slow
// sink.
//
// Sinks are pluggable: a slog sink for structured log shipping, an
// in-memory sink for tests, and a SQLite sink with cron-scheduled
// retention pruning for local audit storage.
package events
