package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sentra-hq/bastion/pkg/waf"
)

func policyYAML(version string) string {
	return "version: \"" + version + "\"\nsettings:\n  mode: Prevention\n"
}

func TestFileSource_LoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(policyYAML("v1")), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	src := NewFileSource(path, nil)
	policy, err := src.LoadPolicy(context.Background())
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.Version != "v1" {
		t.Errorf("Expected version v1, got %q", policy.Version)
	}
}

func TestFileSource_WatchDetectsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(policyYAML("v1")), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	src := NewFileSource(path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// An unrelated file in the same directory is ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write unrelated file: %v", err)
	}

	if err := os.WriteFile(path, []byte(policyYAML("v2")), 0o644); err != nil {
		t.Fatalf("failed to rewrite policy: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("Expected change event, got error %v", ev.Err)
		}
		if filepath.Clean(ev.Path) != filepath.Clean(path) {
			t.Errorf("Expected event for %q, got %q", path, ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for change event")
	}
}

func TestMemorySource_UpdateNotifiesWatchers(t *testing.T) {
	src := NewMemorySource(&waf.Document{Version: "v1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	src.Update(&waf.Document{Version: "v2"})

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for update notification")
	}

	policy, err := src.LoadPolicy(ctx)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.Version != "v2" {
		t.Errorf("Expected updated version v2, got %q", policy.Version)
	}
}

func TestStaticFileSource_NeverSignals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(policyYAML("v1")), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	src := NewStaticFileSource(path)
	if _, err := src.LoadPolicy(context.Background()); err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte(policyYAML("v2")), 0o644); err != nil {
		t.Fatalf("failed to rewrite policy: %v", err)
	}

	select {
	case ev, ok := <-events:
		if ok {
			t.Fatalf("Expected no events from static source, got %+v", ev)
		}
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected channel closed after cancel")
		}
	case <-time.After(time.Second):
		t.Error("Expected channel to close after cancel")
	}
}
