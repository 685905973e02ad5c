// Package scheduler runs the nightly assimilation sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"growthcore/internal/core"
)

const sweepTimeout = 30 * time.Minute

// Scheduler manages the recurring recompute task.
type Scheduler struct {
	cron     *cron.Cron
	svc      *core.Service
	schedule string
	logger   *zap.Logger
	nowFn    func() time.Time
}

// New creates a scheduler that recomputes all active slots on the given
// standard five-field cron schedule.
func New(svc *core.Service, schedule string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		svc:      svc,
		schedule: schedule,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunNow); err != nil {
		return fmt.Errorf("invalid recompute schedule %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduler started", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop halts the cron loop. Running sweeps finish on their own timeout.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

// RunNow executes one assimilation sweep immediately.
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	recomputed, err := s.svc.RecomputeAllAssimilation(ctx, s.nowFn())
	if err != nil {
		s.logger.Error("recompute sweep finished with errors",
			zap.Int("slots", recomputed), zap.Error(err))
		return
	}
	s.logger.Info("recompute sweep finished", zap.Int("slots", recomputed))
}
