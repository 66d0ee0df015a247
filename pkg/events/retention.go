package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes aged-out records from a prunable sink.
type Pruner struct {
	sink   *SQLiteSink
	maxAge time.Duration
	logger *slog.Logger
}

// NewPruner creates a pruner deleting records older than maxAge.
func NewPruner(sink *SQLiteSink, maxAge time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		sink:   sink,
		maxAge: maxAge,
		logger: logger.With("component", "events.pruner"),
	}
}

// Prune runs one pruning pass.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.maxAge)
	deleted, err := p.sink.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logger.Info("pruned event records",
		"deleted", deleted,
		"cutoff", cutoff,
	)
	return deleted, nil
}

// Scheduler runs the pruner on a cron schedule (e.g. "0 3 * * *" for
// daily at 3 AM).
type Scheduler struct {
	pruner   *Pruner
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	logger   *slog.Logger
}

// NewScheduler creates a retention scheduler. An empty schedule disables
// scheduled pruning.
func NewScheduler(pruner *Pruner, schedule string) *Scheduler {
	return &Scheduler{
		pruner:   pruner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "events.scheduler"),
	}
}

// Start begins scheduled pruning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.pruner.Prune(ctx); err != nil {
			s.logger.Error("scheduled prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduled pruning, waiting for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
