package ratelimit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore is a Store backed by SQLite. Window state survives process
// restarts, so a redeployed single-instance gateway keeps its counters
// instead of letting every client start from zero.
//
// The store uses a write-ahead log for concurrent read performance and a
// single connection, since SQLite supports one writer.
type SQLiteStore struct {
	db        *sql.DB
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex

	upsertStmt  *sql.Stmt
	loadStmt    *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file.
	Path string

	// CleanupInterval is how often idle keys are deleted.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// IdleRetention is how long an inactive key is kept before deletion.
	// It should cover the longest configured rule window.
	// Default: 10 minutes.
	IdleRetention time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a SQLite store with default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig creates a SQLite store with custom settings.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("db path cannot be empty")
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.IdleRetention <= 0 {
		cfg.IdleRetention = 10 * time.Minute
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, done: make(chan struct{})}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go s.cleanupLoop(cfg.CleanupInterval, cfg.IdleRetention)

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rate_windows (
		key TEXT PRIMARY KEY,
		window_ns INTEGER NOT NULL,
		buckets TEXT NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rate_windows_last_seen ON rate_windows(last_seen);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.upsertStmt, err = s.db.Prepare(`
		INSERT INTO rate_windows (key, window_ns, buckets, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			window_ns = excluded.window_ns,
			buckets = excluded.buckets,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT window_ns, buckets FROM rate_windows WHERE key = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM rate_windows WHERE last_seen < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// persistedBucket is the stored form of one window bucket.
type persistedBucket struct {
	Start int64 `json:"start"`
	Count int64 `json:"count"`
}

// Incr records one request for the key and returns the in-window count.
// As with MemoryStore, a key whose requested window no longer matches the
// stored one starts a fresh window.
func (s *SQLiteStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sw := newSlidingWindow(window)

	var (
		windowNS int64
		stored   string
	)
	err := s.loadStmt.QueryRowContext(ctx, key).Scan(&windowNS, &stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("failed to load window state: %w", err)
	case time.Duration(windowNS) == window:
		var buckets []persistedBucket
		if err := json.Unmarshal([]byte(stored), &buckets); err != nil {
			return 0, fmt.Errorf("failed to unmarshal window state: %w", err)
		}
		for i, b := range buckets {
			if i >= len(sw.buckets) {
				break
			}
			sw.buckets[i] = bucket{start: time.Unix(0, b.Start), count: b.Count}
		}
	}

	count := sw.incr(now)

	buckets := make([]persistedBucket, 0, len(sw.buckets))
	for _, b := range sw.buckets {
		if b.start.IsZero() {
			continue
		}
		buckets = append(buckets, persistedBucket{Start: b.start.UnixNano(), Count: b.count})
	}
	encoded, err := json.Marshal(buckets)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal window state: %w", err)
	}

	if _, err := s.upsertStmt.ExecContext(ctx, key, int64(window), string(encoded), now.Unix()); err != nil {
		return 0, fmt.Errorf("failed to save window state: %w", err)
	}

	return count, nil
}

// Cleanup deletes keys with no activity since olderThan and reports how
// many were removed.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

func (s *SQLiteStore) cleanupLoop(interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, _ = s.Cleanup(ctx, now.Add(-retention))
			cancel()
		}
	}
}

// Close stops the cleanup loop and releases the database.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.upsertStmt, s.loadStmt, s.cleanupStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		closeErr = s.db.Close()
	})

	return closeErr
}
