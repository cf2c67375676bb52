// Package catalog defines the catalog item model and the target catalog
// store contract shared by the reconciliation pipeline.
package catalog

import (
	"errors"
	"fmt"
)

// Item is a single storefront catalog entry keyed by its merchant-stable
// natural id (e.g. a barcode). Items are only ever created or updated by
// the pipeline; deletion is out of scope.
type Item struct {
	// NaturalID is the merchant-stable external identifier correlating the
	// record across the authoritative source and the target catalog.
	NaturalID string `json:"naturalId"`

	// SourceID is the identifier of the record in the authoritative source.
	SourceID string `json:"sourceId,omitempty"`

	// MerchantID scopes the item; NaturalID is unique within it.
	MerchantID string `json:"merchantId"`

	Name            string `json:"name"`
	Price           int64  `json:"price"`
	DiscountedPrice int64  `json:"discountedPrice,omitempty"`
	StockQuantity   int    `json:"stockQuantity"`
	WarehouseID     string `json:"warehouseId,omitempty"`

	// ParentNaturalID is set on variants and must eventually resolve to a
	// non-variant item in the same merchant scope.
	ParentNaturalID string `json:"parentNaturalId,omitempty"`
	IsVariant       bool   `json:"isVariant,omitempty"`
}

// Validation errors for malformed items. These are terminal: a malformed
// item is skipped and counted as failed, never retried.
var (
	ErrMissingNaturalID = errors.New("item has no natural id")
	ErrMissingName      = errors.New("item has no name")
	ErrVariantNoParent  = errors.New("variant item has no parent natural id")
)

// Validate checks the structural invariants of an item before it is
// allowed anywhere near the target catalog.
func (i *Item) Validate() error {
	if i.NaturalID == "" {
		return ErrMissingNaturalID
	}
	if i.Name == "" {
		return fmt.Errorf("%w: %s", ErrMissingName, i.NaturalID)
	}
	if i.IsVariant && i.ParentNaturalID == "" {
		return fmt.Errorf("%w: %s", ErrVariantNoParent, i.NaturalID)
	}
	return nil
}
