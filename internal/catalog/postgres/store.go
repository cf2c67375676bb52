// Package postgres implements the catalog store on PostgreSQL. The
// (merchant_id, natural_id) uniqueness constraint lives in the schema, so
// concurrent upserts of the same natural id resolve to last-write-wins
// instead of duplicates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openmerch/catalog-sync/internal/catalog"
)

type store struct {
	db *sql.DB
}

var _ catalog.Store = (*store)(nil)

// New creates a catalog store backed by the given database handle.
func New(db *sql.DB) catalog.Store {
	return &store{db: db}
}

const findQuery = `
SELECT natural_id, source_id, merchant_id, name, price, discounted_price,
       stock_quantity, warehouse_id, parent_natural_id, is_variant
FROM catalog_item
WHERE merchant_id = $1 AND natural_id = $2`

// FindByNaturalID returns the stored item, or (nil, nil) when absent.
func (s *store) FindByNaturalID(ctx context.Context, merchantID, naturalID string) (*catalog.Item, error) {
	var (
		item     catalog.Item
		sourceID sql.NullString
		wh       sql.NullString
		parent   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, findQuery, merchantID, naturalID).Scan(
		&item.NaturalID,
		&sourceID,
		&item.MerchantID,
		&item.Name,
		&item.Price,
		&item.DiscountedPrice,
		&item.StockQuantity,
		&wh,
		&parent,
		&item.IsVariant,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog item %s/%s: %w", merchantID, naturalID, err)
	}
	item.SourceID = sourceID.String
	item.WarehouseID = wh.String
	item.ParentNaturalID = parent.String
	return &item, nil
}

const upsertQuery = `
INSERT INTO catalog_item (
    merchant_id, natural_id, source_id, name, price, discounted_price,
    stock_quantity, warehouse_id, parent_natural_id, is_variant
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (merchant_id, natural_id) DO UPDATE SET
    source_id = EXCLUDED.source_id,
    name = EXCLUDED.name,
    price = EXCLUDED.price,
    discounted_price = EXCLUDED.discounted_price,
    stock_quantity = EXCLUDED.stock_quantity,
    warehouse_id = EXCLUDED.warehouse_id,
    parent_natural_id = EXCLUDED.parent_natural_id,
    is_variant = EXCLUDED.is_variant,
    updated_at = now()`

// Upsert inserts the item or overwrites the record with the same
// (merchant_id, natural_id). Safe to replay.
func (s *store) Upsert(ctx context.Context, item *catalog.Item) error {
	_, err := s.db.ExecContext(ctx, upsertQuery,
		item.MerchantID,
		item.NaturalID,
		nilIfEmpty(item.SourceID),
		item.Name,
		item.Price,
		item.DiscountedPrice,
		item.StockQuantity,
		nilIfEmpty(item.WarehouseID),
		nilIfEmpty(item.ParentNaturalID),
		item.IsVariant,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog item %s/%s: %w", item.MerchantID, item.NaturalID, err)
	}
	return nil
}

const existsQuery = `
SELECT EXISTS (
    SELECT 1 FROM catalog_item
    WHERE merchant_id = $1 AND natural_id = $2 AND NOT is_variant
)`

// Exists reports whether a non-variant item with the given natural id is
// present in the merchant scope.
func (s *store) Exists(ctx context.Context, merchantID, naturalID string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsQuery, merchantID, naturalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check parent %s/%s: %w", merchantID, naturalID, err)
	}
	return exists, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
