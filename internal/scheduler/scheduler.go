// Package scheduler runs periodic background tasks.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on each tick until ctx is done.
// Errors are logged and do not stop the schedule.
func Every(ctx context.Context, log *slog.Logger, interval time.Duration, name string, task Task) {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		log.Debug("periodic task disabled", "task", name)
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	run := func() {
		if err := task(ctx); err != nil {
			log.Warn("periodic task failed", "task", name, "err", err)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
