package sessions

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper evicts idle sessions on a cron schedule.
type Sweeper struct {
	manager  *Manager
	schedule string
	maxIdle  time.Duration
	cron     *cron.Cron
	entry    cron.EntryID
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper that evicts sessions idle longer than maxIdle.
func NewSweeper(manager *Manager, schedule string, maxIdle time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		schedule: schedule,
		maxIdle:  maxIdle,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "sessions.sweeper"),
	}
}

// Start schedules the sweep. Schedules use the standard five-field syntax
// plus descriptors such as "@every 1m".
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	entry, err := s.cron.AddFunc(s.schedule, s.Sweep)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.entry = entry

	s.cron.Start()
	s.running = true

	s.logger.Info("session sweeper started", "schedule", s.schedule, "max_idle", s.maxIdle.String())
	return nil
}

// Sweep runs one eviction pass.
func (s *Sweeper) Sweep() {
	evicted := s.manager.SweepIdle(s.maxIdle)
	s.logger.Debug("session sweep completed", "evicted", evicted)
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entry)
	s.running = false
	s.logger.Info("session sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or the zero time when stopped.
func (s *Sweeper) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}
