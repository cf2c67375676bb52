package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a sync request id is unknown.
var ErrNotFound = fmt.Errorf("sync request not found")

// Tracker tracks sync requests through their lifecycle. All mutation goes
// through the tracker so counter updates are atomic; callers never
// read-modify-write request state themselves.
type Tracker interface {
	// Create registers a new sync request in the queued state and returns
	// its id.
	Create(ctx context.Context, merchantID string, insertItems, updateItems int) (*Request, error)

	// Get returns a copy of the request, or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Request, error)

	// AddTotal grows the expected item total. Full-catalog requests learn
	// their size page by page during enumeration.
	AddTotal(ctx context.Context, requestID string, n int) error

	// AddBatches grows the number of batches the request is waiting on.
	// The coordinator calls it at fan-out time and workers call it when
	// they hand off a continuation.
	AddBatches(ctx context.Context, requestID string, n int) error

	// RecordBatchStart transitions the request to processing on the first
	// batch start.
	RecordBatchStart(ctx context.Context, requestID string) error

	// RecordBatchOutcome folds one terminal batch into the request stats
	// and completes the request once all batches are terminal.
	RecordBatchOutcome(ctx context.Context, requestID string, outcome BatchOutcome) error

	// RecordDeferredResolved counts a deferred variant whose write
	// eventually succeeded.
	RecordDeferredResolved(ctx context.Context, requestID string) error

	// RecordDeferredExhausted counts a deferred variant whose retry budget
	// ran out and surfaces its permanent error. Never silently dropped.
	RecordDeferredExhausted(ctx context.Context, requestID string, itemErr ItemError) error
}

// inMemoryTracker is the default single-process Tracker.
type inMemoryTracker struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

var _ Tracker = (*inMemoryTracker)(nil)

// NewInMemory creates an empty in-memory tracker.
func NewInMemory() Tracker {
	return &inMemoryTracker{
		requests: make(map[string]*Request),
	}
}

// Create registers a new sync request in the queued state.
func (t *inMemoryTracker) Create(_ context.Context, merchantID string, insertItems, updateItems int) (*Request, error) {
	req := &Request{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		InsertItems: insertItems,
		UpdateItems: updateItems,
		Status:      StatusQueued,
		Stats:       Stats{Total: insertItems + updateItems},
		CreatedAt:   time.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests[req.ID] = req

	copied := *req
	return &copied, nil
}

// Get returns a copy of the request so callers cannot mutate shared state.
func (t *inMemoryTracker) Get(_ context.Context, requestID string) (*Request, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	req, ok := t.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	copied := *req
	copied.Stats.Errors = append([]ItemError(nil), req.Stats.Errors...)
	return &copied, nil
}

// AddTotal grows the expected item total.
func (t *inMemoryTracker) AddTotal(_ context.Context, requestID string, n int) error {
	return t.update(requestID, func(req *Request) {
		req.Stats.Total += n
	})
}

// AddBatches grows the batch total the request waits on.
func (t *inMemoryTracker) AddBatches(_ context.Context, requestID string, n int) error {
	return t.update(requestID, func(req *Request) {
		req.TotalBatches += n
	})
}

// RecordBatchStart moves the request to processing on the first start.
func (t *inMemoryTracker) RecordBatchStart(_ context.Context, requestID string) error {
	return t.update(requestID, func(req *Request) {
		if req.Status == StatusQueued {
			req.Status = StatusProcessing
		}
	})
}

// RecordBatchOutcome folds a terminal batch into the request.
func (t *inMemoryTracker) RecordBatchOutcome(_ context.Context, requestID string, outcome BatchOutcome) error {
	return t.update(requestID, func(req *Request) {
		req.Stats.Succeeded += outcome.Succeeded
		req.Stats.Failed += outcome.Failed
		req.Stats.Errors = append(req.Stats.Errors, outcome.Errors...)
		req.TerminalBatches++
		if outcome.Aborted {
			req.AbortedBatches++
		}

		if req.TerminalBatches >= req.TotalBatches {
			req.Status = StatusCompleted
			now := time.Now().UTC()
			req.CompletedAt = &now
			slog.Info("Sync request completed",
				"request_id", req.ID,
				"merchant", req.MerchantID,
				"succeeded", req.Stats.Succeeded,
				"failed", req.Stats.Failed,
				"aborted_batches", req.AbortedBatches)
		}
	})
}

// RecordDeferredResolved counts a late variant write success. The request
// may already be completed; counters still move so polling clients see the
// final outcome.
func (t *inMemoryTracker) RecordDeferredResolved(_ context.Context, requestID string) error {
	return t.update(requestID, func(req *Request) {
		req.Stats.Succeeded++
	})
}

// RecordDeferredExhausted surfaces an exhausted orphan as a permanent
// error on the owning request.
func (t *inMemoryTracker) RecordDeferredExhausted(_ context.Context, requestID string, itemErr ItemError) error {
	return t.update(requestID, func(req *Request) {
		req.Stats.Failed++
		req.Stats.Errors = append(req.Stats.Errors, itemErr)
	})
}

func (t *inMemoryTracker) update(requestID string, fn func(*Request)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	fn(req)
	return nil
}
