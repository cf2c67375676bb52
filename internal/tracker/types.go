// Package tracker maintains the aggregate status and statistics of
// logical sync requests for client polling.
package tracker

import "time"

// Status represents the client-visible state of a sync request. There is
// no failed status: per-item failures live in the stats error list and the
// request still completes.
type Status string

const (
	// StatusQueued means the request is accepted but no batch has started
	StatusQueued Status = "queued"

	// StatusProcessing means at least one batch has started
	StatusProcessing Status = "processing"

	// StatusCompleted means all spawned batches reached a terminal state
	StatusCompleted Status = "completed"
)

// ItemError is one failed item in a sync request.
type ItemError struct {
	// ProductCode is the natural id of the failed item
	ProductCode string `json:"product_code"`

	// Error is the human-readable failure reason
	Error string `json:"error"`
}

// Stats aggregates the item-level outcome of a sync request.
type Stats struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// Request is a logical sync request spanning one or more batches.
type Request struct {
	ID          string     `json:"id"`
	MerchantID  string     `json:"merchantId"`
	InsertItems int        `json:"insertItems"`
	UpdateItems int        `json:"updateItems"`
	Status      Status     `json:"status"`
	Stats       Stats      `json:"stats"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Batch accounting; the request completes when terminal == total.
	TotalBatches    int `json:"totalBatches"`
	TerminalBatches int `json:"terminalBatches"`
	AbortedBatches  int `json:"abortedBatches"`
}

// BatchOutcome is the terminal result of one batch, reported by its
// worker.
type BatchOutcome struct {
	Succeeded int
	Failed    int
	Errors    []ItemError

	// Aborted marks a batch-fatal termination with zero items written.
	Aborted bool
}
