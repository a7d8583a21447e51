package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Refresher runs a full refresh cycle. Satisfied by *Engine.
type Refresher interface {
	RefreshAll(ctx context.Context) (CycleStats, error)
}

// Cleaner runs one retention sweep. Satisfied by the sweeper.
type Cleaner interface {
	Sweep(ctx context.Context, retention time.Duration, batchSize int) (map[string]int, error)
}

// SchedulerConfig holds the periodic job settings. The cleanup job starts
// offset from the refresh job so the two never contend for the store at the
// same instant.
type SchedulerConfig struct {
	RefreshEnabled  bool
	CleanupEnabled  bool
	RefreshInterval time.Duration
	CleanupOffset   time.Duration

	Retention        time.Duration
	CleanupBatchSize int
}

// Scheduler drives the periodic refresh and cleanup jobs. Jobs are
// idempotent, so a skipped or doubled tick is harmless.
type Scheduler struct {
	cfg       SchedulerConfig
	refresher Refresher
	cleaner   Cleaner
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig, r Refresher, c Cleaner, logger *slog.Logger) *Scheduler {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		refresher: r,
		cleaner:   c,
		logger:    logger,
	}
}

// Start launches the enabled job loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.RefreshEnabled {
		s.wg.Add(1)
		go s.runRefresh()
	}
	if s.cfg.CleanupEnabled {
		s.wg.Add(1)
		go s.runCleanup()
	}

	s.logger.Info("scheduler started",
		"refresh", s.cfg.RefreshEnabled,
		"cleanup", s.cfg.CleanupEnabled,
		"interval", s.cfg.RefreshInterval,
	)
	return nil
}

// Stop halts the job loops and waits for in-flight runs to finish or the
// context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) runRefresh() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.refresher.RefreshAll(s.ctx); err != nil {
				s.logger.Error("scheduled refresh failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) runCleanup() {
	defer s.wg.Done()

	// Hold for the offset so cleanup never lines up with a refresh tick.
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.cfg.CleanupOffset):
	}

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		if _, err := s.cleaner.Sweep(s.ctx, s.cfg.Retention, s.cfg.CleanupBatchSize); err != nil {
			s.logger.Error("scheduled cleanup failed", "error", err)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
