package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FailureMode controls limiter behavior when the store is unavailable.
type FailureMode string

const (
	// FailOpen allows the request when the store errors (default).
	FailOpen FailureMode = "fail_open"

	// FailClosed treats a store error as a breach.
	FailClosed FailureMode = "fail_closed"
)

// CheckResult is the outcome of one rate limit check.
type CheckResult struct {
	// Key is the checked limit key.
	Key string

	// Count is the in-window request count including this request.
	// Zero when the store failed.
	Count int64

	// Threshold is the configured limit.
	Threshold int64

	// Breached reports whether the count exceeded the threshold.
	Breached bool

	// StoreErr is the store error, if any. The Breached field already
	// reflects the configured failure mode.
	StoreErr error
}

// Limiter checks keyed request counts against per-rule thresholds.
type Limiter struct {
	store    Store
	failMode FailureMode
	logger   *slog.Logger
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, failMode FailureMode, logger *slog.Logger) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if failMode == "" {
		failMode = FailOpen
	}
	if failMode != FailOpen && failMode != FailClosed {
		return nil, fmt.Errorf("unknown failure mode %q", failMode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, failMode: failMode, logger: logger}, nil
}

// Check records one request for the key and reports whether the
// configured threshold is breached within the window. Exactly threshold
// requests pass; request threshold+1 in the same window breaches.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, threshold int64) *CheckResult {
	result := &CheckResult{Key: key, Threshold: threshold}

	count, err := l.store.Incr(ctx, key, window)
	if err != nil {
		result.StoreErr = err
		result.Breached = l.failMode == FailClosed
		l.logger.Error("rate limit store failure",
			"key", key,
			"failure_mode", l.failMode,
			"error", err,
		)
		return result
	}

	result.Count = count
	result.Breached = count > threshold
	return result
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
