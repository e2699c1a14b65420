package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// idempotencyRetention is how long processed event claims are kept before
// pruning. Long enough that any legitimate retry has settled.
const idempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleaner prunes stale idempotency claims.
type IdempotencyCleaner struct {
	store   *shared.IdempotencyStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIdempotencyCleaner constructs the cleaner. Metrics may be nil.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, logger *slog.Logger, metrics *observability.Metrics) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) Handle(ctx context.Context, _ *asynq.Task) error {
	if err := c.store.Cleanup(ctx, idempotencyRetention); err != nil {
		c.metrics.RecordJob(TaskIdempotencyCleanup, "error")
		return err
	}
	c.metrics.RecordJob(TaskIdempotencyCleanup, "ok")
	if c.logger != nil {
		c.logger.Info("idempotency cleanup finished",
			slog.Duration("retention", idempotencyRetention))
	}
	return nil
}
