package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Store persists per-key request counts. Implementations must be safe for
// concurrent use: simultaneous increments of the same key must not lose
// updates, and increments of different keys should not contend.
//
// The in-process MemoryStore serves single-instance deployments; a
// pluggable external-store implementation can back horizontally scaled
// deployments without changing the limiter.
type Store interface {
	// Incr records one request for the key within the given window and
	// returns the total count observed in that window, including this
	// request.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is the in-process Store implementation. Keys are sharded
// across independently locked maps; stale entries are evicted by a
// background sweep.
type MemoryStore struct {
	shards [storeShards]storeShard
	done   chan struct{}
	once   sync.Once
}

type storeShard struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

const storeShards = 64

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// SweepInterval is how often stale entries are evicted.
	// Default: 1 minute.
	SweepInterval time.Duration

	// IdleRetention is how long an inactive key is kept before eviction.
	// Default: 10 minutes. Retention always covers at least one window,
	// so an evicted key has necessarily expired.
	IdleRetention time.Duration
}

// NewMemoryStore creates a memory store with default settings.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(MemoryStoreConfig{})
}

// NewMemoryStoreWithConfig creates a memory store with custom settings.
func NewMemoryStoreWithConfig(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleRetention <= 0 {
		cfg.IdleRetention = 10 * time.Minute
	}

	s := &MemoryStore{done: make(chan struct{})}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]*slidingWindow)
	}

	go s.sweepLoop(cfg.SweepInterval, cfg.IdleRetention)
	return s
}

// Incr records one request for the key and returns the in-window count.
func (s *MemoryStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	shard := &s.shards[shardIndex(key)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	// A key whose rule window changed on policy reload starts a fresh
	// window under the new duration.
	sw, ok := shard.windows[key]
	if !ok || sw.window != window {
		sw = newSlidingWindow(window)
		shard.windows[key] = sw
	}
	return sw.incr(time.Now()), nil
}

// Close stops the eviction sweep.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweepLoop(interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.sweep(now, retention)
		}
	}
}

func (s *MemoryStore) sweep(now time.Time, retention time.Duration) {
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, sw := range shard.windows {
			cutoff := now.Add(-retention)
			if longer := now.Add(-sw.window); longer.Before(cutoff) {
				cutoff = longer
			}
			if sw.idleSince(cutoff) {
				delete(shard.windows, key)
			}
		}
		shard.mu.Unlock()
	}
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % storeShards)
}
