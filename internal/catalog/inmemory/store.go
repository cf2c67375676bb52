// Package inmemory provides an in-memory implementation of the catalog
// Store interface. It is the default store when no database is configured
// and the store used throughout the test suite.
package inmemory

import (
	"context"
	"sync"

	"github.com/openmerch/catalog-sync/internal/catalog"
)

type store struct {
	mu    sync.RWMutex
	items map[storeKey]catalog.Item
}

type storeKey struct {
	merchantID string
	naturalID  string
}

var _ catalog.Store = (*store)(nil)

// New creates an empty in-memory catalog store.
func New() catalog.Store {
	return &store{
		items: make(map[storeKey]catalog.Item),
	}
}

// FindByNaturalID returns a copy of the stored item, or (nil, nil) when the
// natural id is not present in the merchant scope.
func (s *store) FindByNaturalID(_ context.Context, merchantID, naturalID string) (*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[storeKey{merchantID: merchantID, naturalID: naturalID}]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

// Upsert stores the item under its (merchantId, naturalId) key with
// last-write-wins semantics. The map key doubles as the uniqueness
// constraint, so replays and concurrent writers can never create
// duplicates.
func (s *store) Upsert(_ context.Context, item *catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[storeKey{merchantID: item.MerchantID, naturalID: item.NaturalID}] = *item
	return nil
}

// Exists reports whether a non-variant item with the natural id exists in
// the merchant scope.
func (s *store) Exists(_ context.Context, merchantID, naturalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[storeKey{merchantID: merchantID, naturalID: naturalID}]
	return ok && !item.IsVariant, nil
}
