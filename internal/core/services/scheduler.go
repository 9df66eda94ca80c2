package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// CycleRunner runs one sync cycle.
type CycleRunner interface {
	Sync(ctx context.Context) (*domain.CycleResult, error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Engine     CycleRunner
	Logger     *slog.Logger
	Interval   time.Duration // pause between the end of one cycle and the next; default 300s
	RunOnStart bool
}

// Scheduler is the auto-sync loop. The next cycle is timed from the end of
// the previous one, so cycles never overlap. Scheduled outcomes are only
// logged.
type Scheduler struct {
	runner     CycleRunner
	logger     *slog.Logger
	interval   time.Duration
	runOnStart bool

	mu   sync.Mutex
	halt context.CancelFunc
	done chan struct{}
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		runner:     cfg.Engine,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.interval <= 0 {
		s.interval = defaultPollingInterval
	}
	return s
}

// Start launches the loop; it is a no-op while the loop already runs. The
// loop ends on Stop or when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halt != nil {
		return nil
	}

	loopCtx, halt := context.WithCancel(ctx)
	s.halt, s.done = halt, make(chan struct{})
	s.logger.Info("auto-sync starting", "interval", s.interval)
	go s.loop(ctx, loopCtx, s.done)
	return nil
}

// Stop ends the loop. A cycle in flight is allowed to finish first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	halt, done := s.halt, s.done
	s.mu.Unlock()
	if halt == nil {
		return
	}
	halt()
	<-done
	s.logger.Info("auto-sync stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halt != nil
}

// loop waits on loopCtx but runs cycles under ctx, so Stop never cancels
// a cycle halfway.
func (s *Scheduler) loop(ctx, loopCtx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.halt()
			s.halt, s.done = nil, nil
		}
		s.mu.Unlock()
		close(done)
	}()

	wait := s.interval
	if s.runOnStart {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-timer.C:
			s.runCycle(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	result, err := s.runner.Sync(ctx)
	switch {
	case errors.Is(err, domain.ErrLocked):
		s.logger.Debug("scheduled sync skipped, another cycle holds the lock")
	case err != nil:
		s.logger.Error("scheduled sync failed", "error", err)
	default:
		s.logger.Debug("scheduled sync finished", "cycle_id", result.ID, "failed_items", result.Failed)
	}
}
