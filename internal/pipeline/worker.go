package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/queue"
	"github.com/openmerch/catalog-sync/internal/source"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

const (
	defaultRetryMaxTries = 3
	defaultRetryInterval = 500 * time.Millisecond
)

// WorkerMetrics receives batch and item outcome counts.
type WorkerMetrics interface {
	BatchProcessed(state BatchState, duration time.Duration)
	ItemSucceeded()
	ItemFailed()
	ItemDeferred()
}

// Worker executes one bounded batch end-to-end: fetch authoritative data,
// map, write, report outcome. Per-item failures never escalate to batch
// failure; only the batch-fatal preconditions abort a batch, and they are
// checked before any remote call.
type Worker struct {
	inventory source.Inventory
	resolver  *UpsertResolver
	gate      *OrderingGate
	orphans   *OrphanRetryManager
	tracker   tracker.Tracker
	queue     queue.Queue

	deadline      time.Duration
	retryMaxTries uint
	retryInterval time.Duration
	metrics       WorkerMetrics
}

// WorkerOption configures the worker.
type WorkerOption func(*Worker)

// WithDeadline sets the execution-time ceiling per batch task. A worker
// approaching the ceiling re-enqueues the unprocessed remainder as a
// continuation instead of letting an external timeout abort it mid-write.
func WithDeadline(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.deadline = d
		}
	}
}

// WithRetryMaxTries bounds per-call retries of transient remote failures.
func WithRetryMaxTries(n uint) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.retryMaxTries = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval between retries.
func WithRetryInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.retryInterval = d
		}
	}
}

// WithWorkerMetrics installs outcome metrics.
func WithWorkerMetrics(metrics WorkerMetrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = metrics
	}
}

// NewWorker creates a batch worker with injected collaborators.
func NewWorker(
	inventory source.Inventory,
	resolver *UpsertResolver,
	gate *OrderingGate,
	orphans *OrphanRetryManager,
	trk tracker.Tracker,
	q queue.Queue,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		inventory:     inventory,
		resolver:      resolver,
		gate:          gate,
		orphans:       orphans,
		tracker:       trk,
		queue:         q,
		deadline:      config.DefaultWorkerDeadline,
		retryMaxTries: defaultRetryMaxTries,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTask is the queue handler for sync-batch tasks.
func (w *Worker) HandleTask(ctx context.Context, task *queue.Task) error {
	var payload BatchTaskPayload
	if err := queue.Unmarshal(task, &payload); err != nil {
		return fmt.Errorf("malformed batch payload: %w", err)
	}
	payload.Batch.Attempt = task.Attempt

	if err := w.tracker.RecordBatchStart(ctx, payload.Batch.RequestID); err != nil {
		slog.Error("Failed to record batch start",
			"request_id", payload.Batch.RequestID,
			"error", err)
	}

	result := w.Process(ctx, &payload.Batch, payload.Snapshot)

	if err := w.tracker.RecordBatchOutcome(ctx, payload.Batch.RequestID, result.Outcome()); err != nil {
		slog.Error("Failed to record batch outcome",
			"request_id", payload.Batch.RequestID,
			"error", err)
	}
	// Terminal outcomes are fully folded into the result; a handler error
	// here would only trigger a duplicate delivery.
	return nil
}

// Process executes the batch and returns its terminal result.
func (w *Worker) Process(ctx context.Context, batch *Batch, snap config.MerchantSnapshot) *Result {
	started := time.Now()
	result := &Result{State: BatchStateRunning}
	defer func() {
		if w.metrics != nil {
			w.metrics.BatchProcessed(result.State, time.Since(started))
		}
	}()

	slog.Info("Starting batch",
		"batch_id", batch.ID,
		"request_id", batch.RequestID,
		"merchant", batch.MerchantID,
		"sequence", batch.SequenceIndex,
		"items", len(batch.Items),
		"attempt", batch.Attempt)

	// Batch-fatal preconditions come before any remote call so an aborted
	// batch never partially writes data.
	if fatal := checkPreconditions(snap); fatal != nil {
		result.State = BatchStateAborted
		result.AbortReason = fatal.Reason
		slog.Warn("Batch aborted",
			"batch_id", batch.ID,
			"reason", fatal.Reason,
			"error", fatal.Err)
		return result
	}

	snapshots := w.fetchSnapshots(ctx, batch, result)
	if result.State == BatchStatePartiallyFailed {
		return result
	}

	for i := range batch.Items {
		// Execution ceiling: hand the remainder off rather than risk an
		// external timeout mid-write. At least one item is always
		// processed so a continuation chain cannot stall.
		if i > 0 && time.Since(started) > w.deadline {
			w.handOffRemainder(ctx, batch, snap, batch.Items[i:], result)
			break
		}
		w.processItem(ctx, snap, batch, &batch.Items[i], snapshots, result)
	}

	if result.Failed > 0 {
		result.State = BatchStatePartiallyFailed
	} else {
		result.State = BatchStateCompleted
	}

	slog.Info("Batch finished",
		"batch_id", batch.ID,
		"state", result.State,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"deferred", result.Deferred,
		"duration", time.Since(started))
	return result
}

// checkPreconditions validates the merchant snapshot. Both failures are
// terminal for the batch and never retried.
func checkPreconditions(snap config.MerchantSnapshot) *FatalError {
	if !snap.LicenseActive {
		return NewFatalError(ReasonMerchantInvalid, ErrMerchantInvalid)
	}
	if snap.APIKey == "" {
		return NewFatalError(ReasonCredentialsMissing, ErrCredentialsMissing)
	}
	return nil
}

// fetchSnapshots resolves authoritative values for the whole batch with
// transient-failure retries. An unrecoverable fetch marks every item
// failed at item level; it is not batch-fatal because sibling batches and
// later redeliveries may still succeed.
func (w *Worker) fetchSnapshots(ctx context.Context, batch *Batch, result *Result) map[string]*source.ItemSnapshot {
	ids := make([]string, 0, len(batch.Items))
	for i := range batch.Items {
		if batch.Items[i].NaturalID != "" {
			ids = append(ids, batch.Items[i].NaturalID)
		}
	}

	snapshots, err := retryTransient(ctx, w.retryMaxTries, w.retryInterval, func() (map[string]*source.ItemSnapshot, error) {
		return w.inventory.FetchItems(ctx, ids)
	})
	if err != nil {
		slog.Error("Authoritative fetch failed after retries",
			"batch_id", batch.ID,
			"error", err)
		for i := range batch.Items {
			w.recordFailure(result, batch.Items[i].NaturalID, fmt.Sprintf("authoritative fetch failed: %v", err))
		}
		result.State = BatchStatePartiallyFailed
		return nil
	}
	return snapshots
}

// processItem runs one item through validate -> gate -> resolve. One
// item's failure never blocks the rest of the batch.
func (w *Worker) processItem(
	ctx context.Context,
	snap config.MerchantSnapshot,
	batch *Batch,
	item *catalog.Item,
	snapshots map[string]*source.ItemSnapshot,
	result *Result,
) {
	item.MerchantID = snap.MerchantID
	mergeSnapshot(item, snapshots[item.NaturalID], snap)

	if err := item.Validate(); err != nil {
		slog.Warn("Skipping malformed item",
			"batch_id", batch.ID,
			"natural_id", item.NaturalID,
			"error", err)
		w.recordFailure(result, item.NaturalID, err.Error())
		return
	}

	admitted, err := retryTransient(ctx, w.retryMaxTries, w.retryInterval, func() (bool, error) {
		return w.gate.Admit(ctx, snap, item, batch.RequestID)
	})
	if err != nil {
		w.recordFailure(result, item.NaturalID, fmt.Sprintf("parent lookup failed: %v", err))
		return
	}
	if !admitted {
		result.Deferred++
		if w.metrics != nil {
			w.metrics.ItemDeferred()
		}
		return
	}

	_, err = retryTransient(ctx, w.retryMaxTries, w.retryInterval, func() (bool, error) {
		return w.resolver.Resolve(ctx, snap, item)
	})
	if err != nil {
		w.recordFailure(result, item.NaturalID, err.Error())
		return
	}

	result.Succeeded++
	if w.metrics != nil {
		w.metrics.ItemSucceeded()
	}
	if !item.IsVariant {
		// A parent write may unblock deferred variants right away.
		w.orphans.NotifyParentWritten(ctx, item.MerchantID, item.NaturalID)
	}
}

// mergeSnapshot overlays authoritative values on the submitted item. A nil
// snapshot (the not-found marker) keeps the client-supplied values, which
// is what carries brand-new items into the catalog.
func mergeSnapshot(item *catalog.Item, snap *source.ItemSnapshot, merchant config.MerchantSnapshot) {
	if snap == nil {
		return
	}

	item.SourceID = snap.SourceID
	item.ParentNaturalID = snap.ParentNaturalID
	item.IsVariant = snap.IsVariant
	if snap.Name != "" {
		item.Name = snap.Name
	}
	item.Price = snap.Price
	item.DiscountedPrice = snap.DiscountedPrice

	qty, matched := snap.StockFor(merchant.WarehouseID)
	if !matched {
		slog.Warn("Warehouse filter matched no stock rows, reporting zero",
			"merchant", merchant.MerchantID,
			"natural_id", item.NaturalID,
			"warehouse", merchant.WarehouseID)
	}
	item.StockQuantity = qty
	item.WarehouseID = merchant.WarehouseID
}

// handOffRemainder re-enqueues the unprocessed tail as a continuation
// batch so any worker instance can resume it. No partial, unretriable
// batch state is ever left behind.
func (w *Worker) handOffRemainder(
	ctx context.Context,
	batch *Batch,
	snap config.MerchantSnapshot,
	remaining []catalog.Item,
	result *Result,
) {
	continuation := Batch{
		ID:            uuid.NewString(),
		RequestID:     batch.RequestID,
		MerchantID:    batch.MerchantID,
		Items:         append([]catalog.Item(nil), remaining...),
		SequenceIndex: batch.SequenceIndex,
		MaxAttempts:   batch.MaxAttempts,
	}
	payload, err := queue.Marshal(BatchTaskPayload{Batch: continuation, Snapshot: snap})
	if err != nil {
		// Marshalling catalog items cannot realistically fail; count the
		// remainder as failed rather than dropping it silently.
		for i := range remaining {
			w.recordFailure(result, remaining[i].NaturalID, fmt.Sprintf("continuation hand-off failed: %v", err))
		}
		return
	}

	if err := w.tracker.AddBatches(ctx, batch.RequestID, 1); err != nil {
		slog.Error("Failed to grow batch total for continuation",
			"request_id", batch.RequestID,
			"error", err)
	}
	err = w.queue.Enqueue(ctx, &queue.Task{
		ID:          continuation.ID,
		Kind:        TaskKindSyncBatch,
		Payload:     payload,
		MaxAttempts: continuation.MaxAttempts,
	}, 0)
	if err != nil {
		for i := range remaining {
			w.recordFailure(result, remaining[i].NaturalID, fmt.Sprintf("continuation enqueue failed: %v", err))
		}
		return
	}

	slog.Info("Deadline approaching, handed off continuation",
		"batch_id", batch.ID,
		"continuation_id", continuation.ID,
		"remaining_items", len(remaining))
}

func (w *Worker) recordFailure(result *Result, naturalID, reason string) {
	result.Failed++
	result.Errors = append(result.Errors, tracker.ItemError{ProductCode: naturalID, Error: reason})
	if w.metrics != nil {
		w.metrics.ItemFailed()
	}
}

// retryTransient retries op with exponential backoff while the error is
// transient; non-transient errors stop immediately.
func retryTransient[T any](
	ctx context.Context, maxTries uint, initialInterval time.Duration, op func() (T, error),
) (T, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(expBackoff), backoff.WithMaxTries(maxTries))
}
