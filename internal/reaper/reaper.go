// Package reaper fails steps that have been in progress for too long so they
// become eligible for retry.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the part of the workflow engine the reaper drives.
type Sweeper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Reaper struct {
	sweeper    Sweeper
	staleAfter time.Duration
	schedule   string
	logger     *slog.Logger
}

func New(sweeper Sweeper, staleAfter time.Duration, schedule string, logger *slog.Logger) *Reaper {
	return &Reaper{
		sweeper:    sweeper,
		staleAfter: staleAfter,
		schedule:   schedule,
		logger:     logger.With("component", "reaper"),
	}
}

// Start runs the sweep on its cron schedule until ctx is done. Call this in
// main.go as a goroutine.
func (r *Reaper) Start(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(r.schedule, func() { r.Sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.schedule, err)
	}

	r.logger.Info("reaper started", "schedule", r.schedule, "stale_after", r.staleAfter)
	c.Start()

	<-ctx.Done()
	r.logger.Info("reaper shutting down")
	<-c.Stop().Done()
	return nil
}

// Sweep runs one pass.
func (r *Reaper) Sweep(ctx context.Context) {
	n, err := r.sweeper.ReapStale(ctx, r.staleAfter)
	if err != nil {
		r.logger.Error("stale step sweep failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Warn("stale steps failed", "count", n, "stale_after", r.staleAfter)
	}
}
