package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the pruner on a cron schedule.
type Scheduler struct {
	pruner *Pruner
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for the pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "audit.retention.scheduler"),
	}
}

// Start begins scheduled pruning. An empty schedule is a no-op; an
// invalid cron expression is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.pruner.config.Schedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, scheduler disabled")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.pruner.Prune(ctx); err != nil {
			s.logger.Error("scheduled prune failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", schedule)
	return nil
}

// Stop halts scheduled pruning and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}
