// Package coordinator is the top-level entry of the reconciliation
// pipeline. It validates the merchant, decides between an explicit item
// set and a paginated full-catalog enumeration, and fans bounded batches
// out through the queue. It performs no heavy work itself.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/queue"
	"github.com/openmerch/catalog-sync/internal/source"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

// TaskKindEnumerate routes full-catalog enumeration tasks. The payload is
// an EnumerateTaskPayload; the cursor makes the task resumable by any
// worker instance.
const TaskKindEnumerate = "catalog-enumerate"

// batchProcessingAllowance pads the completion estimate per request.
const batchProcessingAllowance = 5 * time.Second

// Operation selects the sync entry mode.
type Operation string

const (
	// OperationExplicitItems syncs the submitted item set
	OperationExplicitItems Operation = "explicit-items"

	// OperationFullCatalog enumerates and syncs the whole catalog
	OperationFullCatalog Operation = "full-catalog"
)

// SyncInput is one sync submission.
type SyncInput struct {
	MerchantID  string
	Operation   Operation
	InsertItems []catalog.Item
	UpdateItems []catalog.Item
}

// EnumerateTaskPayload is the wire form of an enumeration task.
type EnumerateTaskPayload struct {
	RequestID  string `json:"requestId"`
	MerchantID string `json:"merchantId"`
	Cursor     string `json:"cursor,omitempty"`

	// NextSequence continues delay scheduling across enumeration passes.
	NextSequence int `json:"nextSequence,omitempty"`
}

// Coordinator accepts sync submissions and fans out batch work.
type Coordinator interface {
	// StartSync validates the merchant and enqueues the request's batch
	// tasks. It returns pipeline.ErrMerchantInvalid when the merchant is
	// unknown or its license inactive; this is the only synchronous
	// client-visible rejection.
	StartSync(ctx context.Context, input SyncInput) (*tracker.Request, error)

	// EstimateDuration predicts how long a request over itemCount items
	// takes to drain, based on the dispatch delay schedule.
	EstimateDuration(itemCount int) time.Duration
}

// defaultCoordinator is the default implementation of Coordinator.
type defaultCoordinator struct {
	cfg       *config.Config
	inventory source.Inventory
	queue     queue.Queue
	tracker   tracker.Tracker
	scheduler *pipeline.DelayScheduler

	batchSize   int
	maxAttempts int
	enumBudget  time.Duration
	pageSize    int
}

// New creates a coordinator with injected dependencies.
func New(
	cfg *config.Config,
	inventory source.Inventory,
	q queue.Queue,
	trk tracker.Tracker,
) Coordinator {
	return &defaultCoordinator{
		cfg:       cfg,
		inventory: inventory,
		queue:     q,
		tracker:   trk,
		scheduler: pipeline.NewDelayScheduler(
			cfg.Pipeline.BaseDelayDuration(),
			cfg.Pipeline.StepDelayDuration(),
		),
		batchSize:   cfg.Pipeline.BatchSize,
		maxAttempts: cfg.Pipeline.MaxBatchAttempts,
		enumBudget:  cfg.Pipeline.EnumerationBudgetDuration(),
		pageSize:    cfg.Source.PageSize,
	}
}

// Register installs the coordinator's enumeration handler on the queue.
func Register(q queue.Queue, c Coordinator) {
	if dc, ok := c.(*defaultCoordinator); ok {
		q.Register(TaskKindEnumerate, dc.handleEnumerateTask)
	}
}

// StartSync validates the merchant and fans out the request.
func (c *defaultCoordinator) StartSync(ctx context.Context, input SyncInput) (*tracker.Request, error) {
	merchant := c.cfg.Merchant(input.MerchantID)
	if merchant == nil || !merchant.LicenseActive {
		slog.Warn("Ignoring sync for inactive or unknown merchant",
			"merchant", input.MerchantID,
			"operation", input.Operation)
		return nil, fmt.Errorf("%w: %s", pipeline.ErrMerchantInvalid, input.MerchantID)
	}

	switch input.Operation {
	case OperationExplicitItems:
		return c.startExplicit(ctx, merchant, input)
	case OperationFullCatalog:
		return c.startFullCatalog(ctx, merchant)
	default:
		return nil, fmt.Errorf("unknown sync operation: %q", input.Operation)
	}
}

// EstimateDuration predicts drain time from the delay schedule.
func (c *defaultCoordinator) EstimateDuration(itemCount int) time.Duration {
	if itemCount <= 0 {
		return 0
	}
	batches := (itemCount + c.batchSize - 1) / c.batchSize
	return c.scheduler.DelayFor(batches-1) + batchProcessingAllowance
}

// startExplicit splits the submitted items directly.
func (c *defaultCoordinator) startExplicit(
	ctx context.Context, merchant *config.MerchantConfig, input SyncInput,
) (*tracker.Request, error) {
	req, err := c.tracker.Create(ctx, merchant.ID, len(input.InsertItems), len(input.UpdateItems))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync request: %w", err)
	}

	items := make([]catalog.Item, 0, len(input.InsertItems)+len(input.UpdateItems))
	items = append(items, input.InsertItems...)
	items = append(items, input.UpdateItems...)
	for i := range items {
		items[i].MerchantID = merchant.ID
	}

	if len(items) == 0 {
		// Nothing to do; settle the request instead of leaving it queued
		// forever.
		if err := c.tracker.AddBatches(ctx, req.ID, 1); err != nil {
			return nil, err
		}
		if err := c.tracker.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{}); err != nil {
			return nil, err
		}
		return c.tracker.Get(ctx, req.ID)
	}

	if _, err := c.fanOut(ctx, req.ID, merchant.Snapshot(), items, 0); err != nil {
		return nil, err
	}
	return c.tracker.Get(ctx, req.ID)
}

// startFullCatalog enqueues the first enumeration pass. Enumeration runs
// on the queue so a time-budget hand-off can be resumed by any worker.
func (c *defaultCoordinator) startFullCatalog(
	ctx context.Context, merchant *config.MerchantConfig,
) (*tracker.Request, error) {
	req, err := c.tracker.Create(ctx, merchant.ID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync request: %w", err)
	}

	if err := c.enqueueEnumeration(ctx, EnumerateTaskPayload{
		RequestID:  req.ID,
		MerchantID: merchant.ID,
	}); err != nil {
		return nil, err
	}
	return c.tracker.Get(ctx, req.ID)
}

// enqueueEnumeration schedules one enumeration pass, counted as a batch so
// the request stays open until the pass finishes.
func (c *defaultCoordinator) enqueueEnumeration(ctx context.Context, payload EnumerateTaskPayload) error {
	if err := c.tracker.AddBatches(ctx, payload.RequestID, 1); err != nil {
		return err
	}
	body, err := queue.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal enumeration payload: %w", err)
	}
	return c.queue.Enqueue(ctx, &queue.Task{
		ID:          uuid.NewString(),
		Kind:        TaskKindEnumerate,
		Payload:     body,
		MaxAttempts: c.maxAttempts,
	}, 0)
}

// handleEnumerateTask pages through the catalog under the enumeration
// time budget, fanning out batches per page. When the budget expires
// mid-enumeration the remainder is handed off as a continuation task
// rather than blocking further.
func (c *defaultCoordinator) handleEnumerateTask(ctx context.Context, task *queue.Task) error {
	var payload EnumerateTaskPayload
	if err := queue.Unmarshal(task, &payload); err != nil {
		return fmt.Errorf("malformed enumeration payload: %w", err)
	}

	merchant := c.cfg.Merchant(payload.MerchantID)
	if merchant == nil || !merchant.LicenseActive {
		slog.Warn("Merchant became invalid mid-enumeration, settling request",
			"merchant", payload.MerchantID,
			"request_id", payload.RequestID)
		return c.tracker.RecordBatchOutcome(ctx, payload.RequestID, tracker.BatchOutcome{Aborted: true})
	}
	snap := merchant.Snapshot()

	deadline := time.Now().Add(c.enumBudget)
	cursor := payload.Cursor
	sequence := payload.NextSequence

	for {
		page, err := c.inventory.Enumerate(ctx, cursor, c.pageSize)
		if err != nil {
			if cursor == payload.Cursor {
				// Nothing fanned out this delivery; a redelivery restarts
				// from the same cursor without duplicating work.
				return fmt.Errorf("enumeration failed at cursor %q: %w", cursor, err)
			}
			// Pages before this cursor are already fanned out. Checkpoint
			// them as a continuation so the retry resumes here instead of
			// replaying them into the stats and the queue.
			slog.Warn("Enumeration failed mid-pass, handing off continuation",
				"request_id", payload.RequestID,
				"cursor", cursor,
				"error", err)
			if enqErr := c.enqueueEnumeration(ctx, EnumerateTaskPayload{
				RequestID:    payload.RequestID,
				MerchantID:   payload.MerchantID,
				Cursor:       cursor,
				NextSequence: sequence,
			}); enqErr != nil {
				return enqErr
			}
			break
		}

		items := snapshotsToItems(page.Snapshots, snap)
		if len(items) > 0 {
			if err := c.tracker.AddTotal(ctx, payload.RequestID, len(items)); err != nil {
				return err
			}
			batches, err := c.fanOut(ctx, payload.RequestID, snap, items, sequence)
			if err != nil {
				return err
			}
			sequence += batches
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor

		if time.Now().After(deadline) {
			slog.Info("Enumeration budget exceeded, handing off continuation",
				"request_id", payload.RequestID,
				"cursor", cursor,
				"batches_so_far", sequence)
			if err := c.enqueueEnumeration(ctx, EnumerateTaskPayload{
				RequestID:    payload.RequestID,
				MerchantID:   payload.MerchantID,
				Cursor:       cursor,
				NextSequence: sequence,
			}); err != nil {
				return err
			}
			break
		}
	}

	// The enumeration pass itself is a batch in the request accounting.
	return c.tracker.RecordBatchOutcome(ctx, payload.RequestID, tracker.BatchOutcome{})
}

// fanOut splits items and enqueues one batch task per group with the
// scheduler's visibility delay. Returns the number of batches enqueued.
func (c *defaultCoordinator) fanOut(
	ctx context.Context,
	requestID string,
	snap config.MerchantSnapshot,
	items []catalog.Item,
	startSequence int,
) (int, error) {
	groups := pipeline.Split(items, c.batchSize)
	if len(groups) == 0 {
		return 0, nil
	}

	if err := c.tracker.AddBatches(ctx, requestID, len(groups)); err != nil {
		return 0, err
	}

	for i, group := range groups {
		sequence := startSequence + i
		batch := pipeline.Batch{
			ID:            uuid.NewString(),
			RequestID:     requestID,
			MerchantID:    snap.MerchantID,
			Items:         group,
			SequenceIndex: sequence,
			DispatchDelay: c.scheduler.DelayFor(sequence),
			MaxAttempts:   c.maxAttempts,
		}
		payload, err := queue.Marshal(pipeline.BatchTaskPayload{Batch: batch, Snapshot: snap})
		if err != nil {
			return 0, fmt.Errorf("failed to marshal batch payload: %w", err)
		}
		err = c.queue.Enqueue(ctx, &queue.Task{
			ID:          batch.ID,
			Kind:        pipeline.TaskKindSyncBatch,
			Payload:     payload,
			MaxAttempts: batch.MaxAttempts,
		}, batch.DispatchDelay)
		if err != nil {
			return 0, fmt.Errorf("failed to enqueue batch %d: %w", sequence, err)
		}
	}

	slog.Info("Fanned out sync batches",
		"request_id", requestID,
		"merchant", snap.MerchantID,
		"batches", len(groups),
		"items", len(items))
	return len(groups), nil
}

// snapshotsToItems maps authoritative snapshots into catalog items under
// the merchant's warehouse filter.
func snapshotsToItems(snapshots []source.ItemSnapshot, snap config.MerchantSnapshot) []catalog.Item {
	items := make([]catalog.Item, 0, len(snapshots))
	for i := range snapshots {
		s := &snapshots[i]
		qty, matched := s.StockFor(snap.WarehouseID)
		if !matched {
			slog.Warn("Warehouse filter matched no stock rows, reporting zero",
				"merchant", snap.MerchantID,
				"natural_id", s.NaturalID,
				"warehouse", snap.WarehouseID)
		}
		items = append(items, catalog.Item{
			NaturalID:       s.NaturalID,
			SourceID:        s.SourceID,
			MerchantID:      snap.MerchantID,
			Name:            s.Name,
			Price:           s.Price,
			DiscountedPrice: s.DiscountedPrice,
			StockQuantity:   qty,
			WarehouseID:     snap.WarehouseID,
			ParentNaturalID: s.ParentNaturalID,
			IsVariant:       s.IsVariant,
		})
	}
	return items
}
