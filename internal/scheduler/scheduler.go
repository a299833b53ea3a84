package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"uniherald/internal/reconcile"
)

const cycleTimeout = 15 * time.Minute

// Scheduler triggers reconciliation cycles on a fixed interval. Cycles
// never overlap: a cycle outliving the interval delays the next tick
// instead of being skipped, so cycles may run back-to-back.
type Scheduler struct {
	ctx      context.Context
	cron     *cron.Cron
	loop     *reconcile.Loop
	interval time.Duration
	log      *slog.Logger
}

func New(
	ctx context.Context,
	loop *reconcile.Loop,
	interval time.Duration,
	log *slog.Logger,
) *Scheduler {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.DelayIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		ctx:      ctx,
		cron:     c,
		loop:     loop,
		interval: interval,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)

	if _, err := s.cron.AddFunc(spec, s.runCycle); err != nil {
		return fmt.Errorf("add cron func: %w", err)
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, cycleTimeout)
	defer cancel()

	if ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())

		return
	}

	if err := s.loop.RunCycle(ctx); err != nil {
		s.log.ErrorContext(ctx, "Cycle failed",
			"error", err)
	}
}
