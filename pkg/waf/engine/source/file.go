package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/engine"
)

// FileSource loads a policy document from a YAML or JSON file and
// watches it for changes. Change bursts are debounced so an editor
// writing in multiple steps triggers one reload.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewFileSource creates a file-based policy source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:     path,
		debounce: 100 * time.Millisecond,
		logger:   logger.With("component", "waf.source"),
	}
}

// LoadPolicy reads, parses and compiles the policy file.
func (s *FileSource) LoadPolicy(ctx context.Context) (*waf.Policy, error) {
	policy, err := waf.LoadPolicy(s.path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("loaded policy from file",
		"path", s.path,
		"version", policy.Version,
	)
	return policy, nil
}

// Watch watches the policy file's directory for changes to the file.
// Watching the directory rather than the file survives the
// rename-and-replace write pattern most editors and deploy tools use.
func (s *FileSource) Watch(ctx context.Context) (<-chan engine.SourceEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	events := make(chan engine.SourceEvent)
	go func() {
		defer close(events)
		defer watcher.Close()

		var timer *time.Timer
		var pending string
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				pending = ev.Name
				if timer == nil {
					timer = time.AfterFunc(s.debounce, func() {
						select {
						case fire <- struct{}{}:
						default:
						}
					})
				} else {
					timer.Reset(s.debounce)
				}

			case <-fire:
				timer = nil
				select {
				case events <- engine.SourceEvent{Path: pending}:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case events <- engine.SourceEvent{Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
