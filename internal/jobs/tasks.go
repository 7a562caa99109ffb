package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired entries and reports how many were dropped.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Cleaner drops stale in-memory state.
type Cleaner interface {
	Cleanup(now time.Time)
}

// SweepTask wraps a sweeper as a job task.
func SweepTask(name string, sweeper Sweeper, log *slog.Logger) Task {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) error {
		removed, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.InfoContext(ctx, "expired entries swept", "store", name, "removed", removed)
		}
		return nil
	}
}

// CleanupTask wraps a cleaner as a job task.
func CleanupTask(cleaner Cleaner) Task {
	return func(context.Context) error {
		cleaner.Cleanup(time.Now())
		return nil
	}
}
