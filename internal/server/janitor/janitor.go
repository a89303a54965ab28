// Package janitor periodically removes expired verification codes.
package janitor

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/robfig/cron/v3"
)

// Purger deletes expired rows and reports how many went.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Janitor struct {
	purger   Purger
	schedule string
	logger   logging.Logger
}

// New builds a janitor running on a cron schedule such as "@every 10m" or
// "*/10 * * * *". An empty schedule disables it.
func New(p Purger, schedule string, logger logging.Logger) *Janitor {
	return &Janitor{purger: p, schedule: schedule, logger: logger.With("module", "janitor")}
}

// Run schedules the purge and blocks until ctx is done. A purge in flight
// is allowed to finish.
func (j *Janitor) Run(ctx context.Context) error {
	if j.schedule == "" {
		j.logger.Info(ctx, "janitor disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.schedule, err)
	}

	c.Start()
	j.logger.Info(ctx, "janitor started", "schedule", j.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info(ctx, "janitor stopped")
	return nil
}

// RunOnce performs a single purge.
func (j *Janitor) RunOnce(ctx context.Context) {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error(ctx, "purge failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info(ctx, "expired codes purged", "count", n)
	}
}
