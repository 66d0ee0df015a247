package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteSchema creates the event table and its query indexes.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS waf_events (
	id             TEXT PRIMARY KEY,
	timestamp      DATETIME NOT NULL,
	kind           TEXT NOT NULL,
	action         TEXT,
	mode           TEXT,
	policy_version TEXT,
	client_ip      TEXT,
	request_uri    TEXT,
	anomaly_score  INTEGER,
	matched_rules  TEXT,
	message        TEXT
);
CREATE INDEX IF NOT EXISTS idx_waf_events_timestamp ON waf_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_waf_events_kind ON waf_events(kind);
`

// SQLiteSink persists event records to a local SQLite database for audit
// queries and retention-managed storage.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open event database %q: %w", path, err)
	}

	// Single writer; the emitter worker is the only goroutine writing.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Write inserts the record.
func (s *SQLiteSink) Write(ctx context.Context, record *Record) error {
	rules, err := json.Marshal(record.MatchedRules)
	if err != nil {
		return fmt.Errorf("failed to marshal matched rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO waf_events
			(id, timestamp, kind, action, mode, policy_version,
			 client_ip, request_uri, anomaly_score, matched_rules, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.UTC(),
		string(record.Kind),
		record.Action,
		record.Mode,
		record.PolicyVersion,
		record.ClientIP,
		record.RequestURI,
		record.AnomalyScore,
		string(rules),
		record.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event record: %w", err)
	}
	return nil
}

// Prune deletes records older than the cutoff and returns the number
// deleted.
func (s *SQLiteSink) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM waf_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune event records: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored records.
func (s *SQLiteSink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waf_events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count event records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
