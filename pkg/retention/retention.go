// Package retention prunes old check history on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/fieldrules/pkg/metrics"
)

// DefaultSchedule runs pruning once an hour.
const DefaultSchedule = "@hourly"

// Config controls check history pruning.
type Config struct {
	// MaxAge is how long checks are kept. Zero keeps them forever and
	// disables the scheduler.
	MaxAge time.Duration
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@hourly" or "@every 10m". Empty means DefaultSchedule.
	Schedule string
}

// Pruner removes checks recorded before a cutoff. *store.Store implements it.
type Pruner interface {
	PruneChecks(before time.Time) (int, error)
}

// Scheduler runs a Pruner on a schedule.
type Scheduler struct {
	pruner  Pruner
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler. A nil logger disables logging and nil
// metrics disable recording.
func NewScheduler(p Pruner, cfg Config, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Scheduler{
		pruner:  p,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     time.Now,
		cron:    cron.New(),
	}
}

// Start validates the schedule and starts pruning in the background until
// ctx is done or Stop is called. With a zero MaxAge it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxAge <= 0 {
		s.log.Debug("Check retention not configured, keeping all checks")
		return nil
	}
	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.cfg.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { _, _ = s.RunOnce() }); err != nil {
		return fmt.Errorf("scheduling pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.log.Info("Check retention scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("maxAge", s.cfg.MaxAge))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce removes every check older than MaxAge and reports how many were
// removed. With a zero MaxAge nothing is removed.
func (s *Scheduler) RunOnce() (int, error) {
	if s.cfg.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.MaxAge)
	n, err := s.pruner.PruneChecks(cutoff)
	if err != nil {
		s.log.Error("Pruning checks failed", zap.Error(err))
		return 0, err
	}
	s.metrics.AddPrunedChecks(n)
	if n > 0 {
		s.log.Info("Pruned checks", zap.Int("count", n), zap.Time("before", cutoff))
	}
	return n, nil
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info("Check retention scheduler stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, if any.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
