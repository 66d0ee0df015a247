package source

import (
	"context"
	"sync"

	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/engine"
)

// MemorySource serves a policy document held in memory. Update swaps the
// document and notifies watchers, which makes it useful in tests and for
// embedders that author policies programmatically.
type MemorySource struct {
	mu       sync.Mutex
	doc      *waf.Document
	watchers []chan engine.SourceEvent
}

// NewMemorySource creates a source serving the given document.
func NewMemorySource(doc *waf.Document) *MemorySource {
	return &MemorySource{doc: doc}
}

// LoadPolicy compiles the current document.
func (s *MemorySource) LoadPolicy(ctx context.Context) (*waf.Policy, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	return waf.Compile(doc)
}

// Update replaces the document and notifies watchers.
func (s *MemorySource) Update(doc *waf.Document) {
	s.mu.Lock()
	s.doc = doc
	watchers := make([]chan engine.SourceEvent, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- engine.SourceEvent{Path: "memory"}:
		default:
		}
	}
}

// Watch returns a channel receiving an event per Update.
func (s *MemorySource) Watch(ctx context.Context) (<-chan engine.SourceEvent, error) {
	ch := make(chan engine.SourceEvent, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
