package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// FIFOIntegrityChecker scans the lot ledger for impossible states: negative
// remaining quantities or remainders exceeding the original receipt.
type FIFOIntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFIFOIntegrityChecker constructs the checker. Metrics may be nil.
func NewFIFOIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *FIFOIntegrityChecker {
	return &FIFOIntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskFIFOIntegrity tasks.
func (c *FIFOIntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 1000
	}
	bad, err := c.Run(ctx, payload.Limit)
	if err != nil {
		c.metrics.RecordJob(TaskFIFOIntegrity, "error")
		return err
	}
	if len(bad) > 0 {
		c.metrics.RecordJob(TaskFIFOIntegrity, "corrupt")
		return fmt.Errorf("fifo integrity: %d corrupt lots, first id %d", len(bad), bad[0])
	}
	c.metrics.RecordJob(TaskFIFOIntegrity, "ok")
	return nil
}

// Run returns the ids of lots violating the remaining-quantity invariants.
func (c *FIFOIntegrityChecker) Run(ctx context.Context, limit int) ([]int64, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id FROM inventory_lots
		 WHERE remaining_qty < 0 OR remaining_qty > qty OR unit_cost < 0
		 ORDER BY id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bad []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		bad = append(bad, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Info("fifo integrity scan finished",
			slog.Int("corrupt", len(bad)), slog.Int("limit", limit))
	}
	return bad, nil
}
