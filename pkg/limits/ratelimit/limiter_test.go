package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// failingStore always errors, simulating an unavailable backend.
type failingStore struct{}

func (failingStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("store unavailable")
}

func (failingStore) Close() error { return nil }

func TestLimiter_ThresholdBoundary(t *testing.T) {
	limiter, err := NewLimiter(NewMemoryStore(), FailOpen, nil)
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	defer limiter.Close()

	ctx := context.Background()
	const threshold = 5

	// Exactly threshold requests pass.
	for i := 1; i <= threshold; i++ {
		result := limiter.Check(ctx, "login|1.2.3.4", time.Minute, threshold)
		if result.Breached {
			t.Fatalf("Request %d breached below threshold (count=%d)", i, result.Count)
		}
		if result.Count != int64(i) {
			t.Errorf("Expected count %d, got %d", i, result.Count)
		}
	}

	// Request threshold+1 breaches.
	result := limiter.Check(ctx, "login|1.2.3.4", time.Minute, threshold)
	if !result.Breached {
		t.Errorf("Expected breach at threshold+1, count=%d", result.Count)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter, err := NewLimiter(NewMemoryStore(), FailOpen, nil)
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	defer limiter.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "rule|10.0.0.1", time.Minute, 3)
	}

	// A different client key starts at zero.
	result := limiter.Check(ctx, "rule|10.0.0.2", time.Minute, 3)
	if result.Breached || result.Count != 1 {
		t.Errorf("Expected independent count 1, got count=%d breached=%v", result.Count, result.Breached)
	}

	// The first key is now over its threshold.
	result = limiter.Check(ctx, "rule|10.0.0.1", time.Minute, 3)
	if !result.Breached {
		t.Error("Expected first key to breach")
	}
}

func TestLimiter_FailureModes(t *testing.T) {
	tests := []struct {
		name         string
		mode         FailureMode
		wantBreached bool
	}{
		{name: "fail open allows", mode: FailOpen, wantBreached: false},
		{name: "fail closed breaches", mode: FailClosed, wantBreached: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewLimiter(failingStore{}, tt.mode, nil)
			if err != nil {
				t.Fatalf("NewLimiter failed: %v", err)
			}

			result := limiter.Check(context.Background(), "k", time.Minute, 10)
			if result.StoreErr == nil {
				t.Fatal("Expected store error to be surfaced")
			}
			if result.Breached != tt.wantBreached {
				t.Errorf("Expected breached=%v, got %v", tt.wantBreached, result.Breached)
			}
		})
	}
}

func TestNewLimiter_Validation(t *testing.T) {
	if _, err := NewLimiter(nil, FailOpen, nil); err == nil {
		t.Error("Expected error for nil store")
	}
	if _, err := NewLimiter(NewMemoryStore(), "fail_sideways", nil); err == nil {
		t.Error("Expected error for unknown failure mode")
	}

	// Empty mode defaults to fail open.
	limiter, err := NewLimiter(failingStore{}, "", nil)
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	if result := limiter.Check(context.Background(), "k", time.Minute, 1); result.Breached {
		t.Error("Expected default failure mode to fail open")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	const (
		goroutines = 8
		perWorker  = 50
	)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Shared key plus a per-worker key to exercise shards.
				store.Incr(ctx, "shared", time.Minute)
				store.Incr(ctx, fmt.Sprintf("worker-%d", id), time.Minute)
			}
		}(g)
	}
	wg.Wait()

	count, err := store.Incr(ctx, "shared", time.Minute)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != goroutines*perWorker+1 {
		t.Errorf("Expected count %d, got %d", goroutines*perWorker+1, count)
	}
}

func TestMemoryStore_SweepEvictsIdleKeys(t *testing.T) {
	store := NewMemoryStoreWithConfig(MemoryStoreConfig{
		SweepInterval: time.Hour, // swept manually below
		IdleRetention: time.Minute,
	})
	defer store.Close()

	ctx := context.Background()
	store.Incr(ctx, "stale", time.Minute)
	store.Incr(ctx, "fresh", time.Minute)

	// Sweep as if the retention period passed for "stale" only.
	shard := &store.shards[shardIndex("stale")]
	shard.mu.Lock()
	shard.windows["stale"].lastSeen = time.Now().Add(-2 * time.Minute)
	shard.mu.Unlock()

	store.sweep(time.Now(), time.Minute)

	shard.mu.Lock()
	_, staleKept := shard.windows["stale"]
	shard.mu.Unlock()
	if staleKept {
		t.Error("Expected stale key to be evicted")
	}

	count, err := store.Incr(ctx, "fresh", time.Minute)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected fresh key to survive sweep with count 2, got %d", count)
	}
}

func TestMemoryStore_WindowChangeStartsFresh(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.Incr(ctx, "client", time.Minute); err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
	}

	// A reload that changes the rule window must not keep counting
	// against the old duration.
	count, err := store.Incr(ctx, "client", 5*time.Minute)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected fresh window after duration change, got count %d", count)
	}

	count, err = store.Incr(ctx, "client", 5*time.Minute)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected new window to keep counting, got %d", count)
	}
}
