package source

import (
	"context"

	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/engine"
)

// StaticFileSource loads a policy file once and never signals changes.
// Use it when file watching is disabled; reloads still work on demand
// through the engine's Reload.
type StaticFileSource struct {
	path string
}

// NewStaticFileSource creates a non-watching file-based policy source.
func NewStaticFileSource(path string) *StaticFileSource {
	return &StaticFileSource{path: path}
}

// LoadPolicy reads, parses and compiles the policy file.
func (s *StaticFileSource) LoadPolicy(ctx context.Context) (*waf.Policy, error) {
	return waf.LoadPolicy(s.path)
}

// Watch returns a channel that closes with the context and never
// delivers events.
func (s *StaticFileSource) Watch(ctx context.Context) (<-chan engine.SourceEvent, error) {
	events := make(chan engine.SourceEvent)
	go func() {
		<-ctx.Done()
		close(events)
	}()
	return events, nil
}
