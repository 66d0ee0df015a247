package events

import (
	"context"
	"testing"
	"time"
)

// blockingSink holds the worker inside Write until released, so tests
// can fill the queue deterministically.
type blockingSink struct {
	inner   *MemorySink
	started chan struct{}
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		inner:   NewMemorySink(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Write(ctx context.Context, record *Record) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return s.inner.Write(ctx, record)
}

func (s *blockingSink) Close() error { return nil }

func TestEmitter_FillsIDAndTimestamp(t *testing.T) {
	sink := NewMemorySink()
	emitter := NewEmitter(sink, nil, nil)

	emitter.Emit(&Record{Kind: KindVerdict, Action: "Block"})
	if err := emitter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records := sink.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ID == "" {
		t.Error("Expected generated id")
	}
	if records[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled")
	}
}

func TestEmitter_DropsOldestWhenFull(t *testing.T) {
	sink := newBlockingSink()
	emitter := NewEmitter(sink, &Config{BufferSize: 2}, nil)

	// First record is taken by the worker, which then blocks in Write.
	emitter.Emit(&Record{ID: "r1", Kind: KindVerdict})
	select {
	case <-sink.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Worker never reached the sink")
	}

	// Fill the queue, then overflow it by two.
	emitter.Emit(&Record{ID: "r2", Kind: KindVerdict})
	emitter.Emit(&Record{ID: "r3", Kind: KindVerdict})
	emitter.Emit(&Record{ID: "r4", Kind: KindVerdict})
	emitter.Emit(&Record{ID: "r5", Kind: KindVerdict})

	if got := emitter.Dropped(); got != 2 {
		t.Errorf("Expected 2 dropped records, got %d", got)
	}

	close(sink.release)
	if err := emitter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The oldest queued records (r2, r3) were dropped; the in-flight
	// record and the newest survive.
	want := map[string]bool{"r1": true, "r4": true, "r5": true}
	records := sink.inner.Records()
	if len(records) != len(want) {
		t.Fatalf("Expected %d delivered records, got %d", len(want), len(records))
	}
	for _, r := range records {
		if !want[r.ID] {
			t.Errorf("Unexpected record %q delivered", r.ID)
		}
	}
}

func TestEmitter_DrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	emitter := NewEmitter(sink, &Config{BufferSize: 100}, nil)

	for i := 0; i < 50; i++ {
		emitter.Emit(&Record{Kind: KindVerdict})
	}
	if err := emitter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := len(sink.Records()); got != 50 {
		t.Errorf("Expected all 50 records delivered on close, got %d", got)
	}
	if emitter.Dropped() != 0 {
		t.Errorf("Expected no drops, got %d", emitter.Dropped())
	}
}

func TestEmitter_NilRecordIgnored(t *testing.T) {
	sink := NewMemorySink()
	emitter := NewEmitter(sink, nil, nil)

	emitter.Emit(nil)
	if err := emitter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(sink.Records()); got != 0 {
		t.Errorf("Expected no records, got %d", got)
	}
}

func TestRecord_RuleIDs(t *testing.T) {
	r := &Record{MatchedRules: []RuleRef{
		{RuleID: "942100", RuleSet: "Default"},
		{RuleID: "block-admin"},
	}}
	ids := r.RuleIDs()
	if len(ids) != 2 || ids[0] != "942100" || ids[1] != "block-admin" {
		t.Errorf("Unexpected rule ids: %v", ids)
	}
}
