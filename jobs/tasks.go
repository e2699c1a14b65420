package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity verifies that every journal entry balances.
	TaskGLIntegrity = "ledger:integrity"
	// TaskFIFOIntegrity verifies lot invariants in the FIFO ledger.
	TaskFIFOIntegrity = "inventory:integrity"
	// TaskIdempotencyCleanup prunes stale idempotency claims.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// IntegrityPayload bounds an integrity scan.
type IntegrityPayload struct {
	Limit int `json:"limit"`
}

// NewGLIntegrityTask constructs the ledger integrity task.
func NewGLIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}

// NewFIFOIntegrityTask constructs the lot integrity task.
func NewFIFOIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFIFOIntegrity, data), nil
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
