package scheduler

import (
	"context"
	"log/slog"
	"time"

	"calsync/internal/domain"
)

// Syncer runs one pass over every active calendar.
type Syncer interface {
	SyncAllCalendars(ctx context.Context, trigger domain.Trigger) (*domain.FleetResult, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs a pass every interval. Each
// pass is canceled after timeout; a zero timeout leaves passes unbounded.
func NewScheduler(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start runs a pass immediately and then on every tick until ctx is done.
// Passes never overlap: a tick that fires during a long pass is dropped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		syncCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fleet, err := s.syncer.SyncAllCalendars(syncCtx, domain.TriggerScheduled)
	if err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}

	failed := 0
	for _, r := range fleet.Results {
		if !r.Result.Success {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warn("scheduled sync finished with failures",
			"calendars", len(fleet.Results),
			"failed", failed,
		)
	}
}
