package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/config"
)

// UpsertResolver makes the idempotent create-or-update decision per item,
// keyed by the merchant-stable natural id.
type UpsertResolver struct {
	store catalog.Store
}

// NewUpsertResolver creates a resolver writing through the given store.
func NewUpsertResolver(store catalog.Store) *UpsertResolver {
	return &UpsertResolver{store: store}
}

// Resolve looks up the item by natural id and inserts or updates it.
// Items the client classified as updates are silently reclassified as
// inserts when no local record exists. Updates touch only the merchant's
// enabled fields. Replaying an unchanged item produces no state delta, so
// Resolve is always safe to retry.
func (r *UpsertResolver) Resolve(ctx context.Context, snap config.MerchantSnapshot, item *catalog.Item) (created bool, err error) {
	existing, err := r.store.FindByNaturalID(ctx, item.MerchantID, item.NaturalID)
	if err != nil {
		return false, fmt.Errorf("lookup failed for %s: %w", item.NaturalID, err)
	}

	if existing == nil {
		if err := r.store.Upsert(ctx, item); err != nil {
			return false, fmt.Errorf("insert failed for %s: %w", item.NaturalID, err)
		}
		return true, nil
	}

	updated := applyEnabledFields(existing, item, snap.EnabledFields)
	if updated == *existing {
		// Unchanged replay: no write, no state delta.
		slog.Debug("Skipping no-op update",
			"merchant", item.MerchantID,
			"natural_id", item.NaturalID)
		return false, nil
	}

	if err := r.store.Upsert(ctx, &updated); err != nil {
		return false, fmt.Errorf("update failed for %s: %w", item.NaturalID, err)
	}
	return false, nil
}

// applyEnabledFields builds the update candidate: the existing record with
// only the toggled fields taken from the incoming item. Identity and
// hierarchy fields always follow the incoming item since the
// authoritative source owns them.
func applyEnabledFields(existing, incoming *catalog.Item, toggles config.FieldToggles) catalog.Item {
	updated := *existing
	if incoming.SourceID != "" {
		updated.SourceID = incoming.SourceID
	}
	updated.ParentNaturalID = incoming.ParentNaturalID
	updated.IsVariant = incoming.IsVariant

	if toggles.Name {
		updated.Name = incoming.Name
	}
	if toggles.Price {
		updated.Price = incoming.Price
		updated.DiscountedPrice = incoming.DiscountedPrice
	}
	if toggles.Stock {
		updated.StockQuantity = incoming.StockQuantity
		updated.WarehouseID = incoming.WarehouseID
	}
	return updated
}
