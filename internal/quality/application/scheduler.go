package application

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sweeper runs one station sweep.
type Sweeper interface {
	AutoPredict(ctx context.Context) (*SweepResult, error)
}

// Scheduler triggers station sweeps at a fixed interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clockwork.Clock
	logger   *log.Logger
}

// NewScheduler constructs a Scheduler. A non-positive interval disables it.
func NewScheduler(sweeper Sweeper, interval time.Duration, clock clockwork.Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Start runs the loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.sweeper == nil || s.interval <= 0 {
		return
	}
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.sweeper.AutoPredict(ctx)
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Printf("sweep schedule error: %v", err)
		return
	}
	s.logger.Printf("sweep schedule: run=%s stations=%d created=%d", result.RunID, result.StationsAnalyzed, result.AlertsCreated)
}
