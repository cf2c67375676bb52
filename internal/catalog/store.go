package catalog

import "context"

// Store is the target catalog consumed by the pipeline. Correctness rests
// on a uniqueness constraint over (merchantId, naturalId) plus
// last-write-wins upsert semantics: concurrent upserts of the same natural
// id must never create duplicates.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/openmerch/catalog-sync/internal/catalog Store
type Store interface {
	// FindByNaturalID returns the stored item, or (nil, nil) when absent.
	FindByNaturalID(ctx context.Context, merchantID, naturalID string) (*Item, error)

	// Upsert inserts the item or overwrites the existing record with the
	// same (merchantId, naturalId). It must be safe to replay.
	Upsert(ctx context.Context, item *Item) error

	// Exists reports whether a non-variant item with the given natural id
	// is present in the merchant scope. Used by the ordering gate for
	// parent lookups.
	Exists(ctx context.Context, merchantID, naturalID string) (bool, error)
}
