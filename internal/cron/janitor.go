package cron

import (
	"context"

	"go.uber.org/zap"
)

// JanitorJob is the name the object janitor is registered under
const JanitorJob = "object-janitor"

// ObjectSweeper is the temporary object store as seen by the janitor
type ObjectSweeper interface {
	Count() (int, error)
	CollectGarbage(discardRatio float64) (int, error)
}

// Janitor reclaims space held by expired temporary uploads. Live objects
// are only reported; expiry itself is handled by the store's TTL.
func Janitor(objects ObjectSweeper, logger *zap.Logger) JobFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		live, err := objects.Count()
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rewritten, err := objects.CollectGarbage(0.5)
		if err != nil {
			return err
		}

		logger.Info("Object janitor finished",
			zap.Int("live_objects", live),
			zap.Int("vlog_files_rewritten", rewritten),
		)
		return nil
	}
}
