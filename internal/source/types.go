// Package source defines the authoritative inventory source contract and
// its implementations. The source is read-only and safe to call
// repeatedly; the pipeline treats it as the single source of truth for
// item names, prices and stock.
package source

import (
	"context"
	"fmt"
)

// StockRow is the per-warehouse stock of one item in the authoritative
// source.
type StockRow struct {
	WarehouseID string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
}

// ItemSnapshot is the authoritative view of a single item at fetch time.
type ItemSnapshot struct {
	NaturalID       string     `json:"naturalId"`
	SourceID        string     `json:"sourceId,omitempty"`
	Name            string     `json:"name"`
	Price           int64      `json:"price"`
	DiscountedPrice int64      `json:"discountedPrice,omitempty"`
	StockRows       []StockRow `json:"stockRows,omitempty"`
	ParentNaturalID string     `json:"parentNaturalId,omitempty"`
	IsVariant       bool       `json:"isVariant,omitempty"`
}

// StockFor resolves the snapshot's stock for a warehouse filter. An empty
// filter sums all rows. A filter matching no rows reports zero stock with
// matched=false so the caller can log a warning; it never blocks the
// write.
func (s *ItemSnapshot) StockFor(warehouseID string) (quantity int, matched bool) {
	if warehouseID == "" {
		for _, row := range s.StockRows {
			quantity += row.Quantity
		}
		return quantity, true
	}
	for _, row := range s.StockRows {
		if row.WarehouseID == warehouseID {
			quantity += row.Quantity
			matched = true
		}
	}
	return quantity, matched
}

// Page is one page of a full-catalog enumeration.
type Page struct {
	// Snapshots holds the page contents in source order.
	Snapshots []ItemSnapshot

	// NextCursor is the opaque cursor of the following page; empty on the
	// last page.
	NextCursor string
}

// Inventory is the authoritative source consumed by the pipeline.
//
//go:generate mockgen -destination=mocks/mock_inventory.go -package=mocks github.com/openmerch/catalog-sync/internal/source Inventory
type Inventory interface {
	// FetchItems resolves authoritative snapshots for the given natural
	// ids. Every requested id is present in the result map; ids unknown to
	// the source map to a nil snapshot (the not-found marker).
	FetchItems(ctx context.Context, naturalIDs []string) (map[string]*ItemSnapshot, error)

	// Enumerate returns one page of the full catalog starting at the
	// opaque cursor. An empty cursor starts from the beginning.
	Enumerate(ctx context.Context, cursor string, limit int) (*Page, error)
}

// HTTPError represents an HTTP error from the source endpoint
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}
