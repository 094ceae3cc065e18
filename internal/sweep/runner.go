package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner triggers both sweeps on a fixed interval until its context ends.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewRunner(sweeper *Sweeper, interval time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{sweeper: sweeper, interval: interval, now: time.Now, logger: logger}
}

func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("sweep runner started", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sweep runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes one pass of every sweep. Errors are logged so that one
// failing sweep does not starve the other.
func (r *Runner) RunOnce(ctx context.Context) {
	now := r.now().UTC()

	summaries, err := r.sweeper.DailySummaries(ctx, now)
	if err != nil {
		r.logger.Error("daily summaries sweep failed", zap.Error(err))
	}
	reminders, err := r.sweeper.FlaggedReminders(ctx, now)
	if err != nil {
		r.logger.Error("flagged reminders sweep failed", zap.Error(err))
	}

	r.logger.Info("sweep finished", zap.Int("summaries", summaries), zap.Int("reminders", reminders))
}
