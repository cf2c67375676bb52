package pipeline

import (
	"time"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

// TaskKindSyncBatch routes batch tasks to the worker. The payload is a
// BatchTaskPayload.
const TaskKindSyncBatch = "sync-batch"

// BatchState is the lifecycle state of one batch.
type BatchState string

const (
	// BatchStateCreated means the batch is built but not yet executing
	BatchStateCreated BatchState = "created"

	// BatchStateRunning means a worker is executing the batch
	BatchStateRunning BatchState = "running"

	// BatchStateCompleted means every item succeeded or was deferred
	BatchStateCompleted BatchState = "completed"

	// BatchStatePartiallyFailed means at least one item failed
	BatchStatePartiallyFailed BatchState = "partially_failed"

	// BatchStateAborted means a batch-fatal precondition stopped the batch
	// before any write
	BatchStateAborted BatchState = "aborted"
)

// Batch is one bounded unit of sync work. It is consumed exactly once by
// a worker and destroyed on a terminal outcome.
type Batch struct {
	ID            string         `json:"id"`
	RequestID     string         `json:"requestId"`
	MerchantID    string         `json:"merchantId"`
	Items         []catalog.Item `json:"items"`
	SequenceIndex int            `json:"sequenceIndex"`
	DispatchDelay time.Duration  `json:"dispatchDelay"`
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"maxAttempts"`
}

// BatchTaskPayload is the wire form of a batch task. The merchant snapshot
// travels with the batch so any worker instance can execute or resume it
// without re-reading configuration.
type BatchTaskPayload struct {
	Batch    Batch                   `json:"batch"`
	Snapshot config.MerchantSnapshot `json:"snapshot"`
}

// Result is the terminal outcome of one batch. Per-item failures are
// recorded here and never propagated as an unhandled fault.
type Result struct {
	State       BatchState
	Succeeded   int
	Failed      int
	Deferred    int
	Errors      []tracker.ItemError
	AbortReason string
}

// Outcome converts the batch result into the tracker's reporting shape.
// Deferred items are excluded; their terminal outcome is reported by the
// orphan retry manager when it resolves or exhausts them.
func (r *Result) Outcome() tracker.BatchOutcome {
	return tracker.BatchOutcome{
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Errors:    r.Errors,
		Aborted:   r.State == BatchStateAborted,
	}
}
