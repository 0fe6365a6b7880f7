package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fieldpay-hr/fieldpay/internal/claims"
	jobmetrics "github.com/fieldpay-hr/fieldpay/internal/jobs"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// systemActor runs scheduled maintenance with full authority.
var systemActor = shared.Actor{ID: 0, Role: shared.RoleAdmin}

// NewResetCorruptedHandler returns the handler for the nightly sweep that
// forces claims with unrecognised stage values back to pending.
func NewResetCorruptedHandler(lifecycle *claims.Lifecycle, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("claims_reset_corrupted")
		count, err := lifecycle.ResetCorrupted(ctx, systemActor)
		if err != nil {
			logger.Error("reset corrupted claims", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddResets(count)
		if count > 0 {
			logger.Warn("reset corrupted claims", slog.Int64("count", count))
		}
		return tracker.End(nil)
	}
}
