package events

import (
	"context"
	"log/slog"
	"sync"
)

// LogSink writes event records as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "waf.events")}
}

// Write logs the record.
func (s *LogSink) Write(ctx context.Context, record *Record) error {
	s.logger.Info("waf event",
		"event_id", record.ID,
		"kind", record.Kind,
		"action", record.Action,
		"mode", record.Mode,
		"policy_version", record.PolicyVersion,
		"client_ip", record.ClientIP,
		"request_uri", record.RequestURI,
		"anomaly_score", record.AnomalyScore,
		"rule_ids", record.RuleIDs(),
		"message", record.Message,
	)
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error {
	return nil
}

// MemorySink collects records in memory. Intended for tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends the record.
func (s *MemorySink) Write(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of the collected records.
func (s *MemorySink) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// Close is a no-op.
func (s *MemorySink) Close() error {
	return nil
}
