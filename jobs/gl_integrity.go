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

// GLIntegrityChecker scans the journal for entries whose lines no longer sum
// to their stored totals. A non-empty result means the books were corrupted
// outside the posting path.
type GLIntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGLIntegrityChecker constructs the checker. Metrics may be nil.
func NewGLIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *GLIntegrityChecker {
	return &GLIntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskGLIntegrity tasks.
func (c *GLIntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
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
		c.metrics.RecordJob(TaskGLIntegrity, "error")
		return err
	}
	if len(bad) > 0 {
		c.metrics.RecordJob(TaskGLIntegrity, "unbalanced")
		return fmt.Errorf("gl integrity: %d unbalanced entries, first id %d", len(bad), bad[0])
	}
	c.metrics.RecordJob(TaskGLIntegrity, "ok")
	return nil
}

// Run returns the ids of entries whose line sums disagree with their totals
// or whose debits and credits disagree with each other.
func (c *GLIntegrityChecker) Run(ctx context.Context, limit int) ([]int64, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT e.id
		 FROM journal_entries e
		 JOIN journal_entry_lines l ON l.entry_id = e.id
		 WHERE e.status IN ('POSTED', 'VOID')
		 GROUP BY e.id, e.total_debit, e.total_credit
		 HAVING SUM(l.debit) <> e.total_debit
		     OR SUM(l.credit) <> e.total_credit
		     OR SUM(l.debit) <> SUM(l.credit)
		 ORDER BY e.id
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
		c.logger.Info("gl integrity scan finished",
			slog.Int("unbalanced", len(bad)), slog.Int("limit", limit))
	}
	return bad, nil
}
