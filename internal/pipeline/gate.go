package pipeline

import (
	"context"
	"fmt"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/config"
)

// OrphanSink receives the variants the gate defers.
type OrphanSink interface {
	// Defer records a variant whose parent is not yet written.
	Defer(record OrphanRecord)
}

// OrderingGate enforces the parent-before-variant write invariant.
// Batches dispatched with independent delays are not guaranteed to
// preserve parent-before-child order across batch boundaries; the gate
// absorbs that race by deferring variants instead of requiring a global
// ordering barrier.
type OrderingGate struct {
	store   catalog.Store
	orphans OrphanSink
}

// NewOrderingGate creates a gate checking parent existence against the
// store and deferring orphans into the sink.
func NewOrderingGate(store catalog.Store, orphans OrphanSink) *OrderingGate {
	return &OrderingGate{store: store, orphans: orphans}
}

// Admit reports whether the item may be written now. Non-variants always
// pass. A variant passes when its parent resolves to an already-written
// non-variant item in the same merchant scope; otherwise the gate emits an
// OrphanRecord and the caller continues with the rest of the batch - a
// deferral never fails the batch. The returned error is only ever a
// transient store failure.
func (g *OrderingGate) Admit(ctx context.Context, snap config.MerchantSnapshot, item *catalog.Item, requestID string) (bool, error) {
	if !item.IsVariant {
		return true, nil
	}

	exists, err := g.store.Exists(ctx, item.MerchantID, item.ParentNaturalID)
	if err != nil {
		return false, fmt.Errorf("parent lookup failed for %s: %w", item.NaturalID, err)
	}
	if exists {
		return true, nil
	}

	g.orphans.Defer(OrphanRecord{
		Item:            *item,
		MissingParentID: item.ParentNaturalID,
		RequestID:       requestID,
		Snapshot:        snap,
	})
	return false, nil
}
