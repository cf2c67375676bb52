package inmemory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/catalog/inmemory"
)

func TestFindByNaturalID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.New()

	item, err := store.FindByNaturalID(ctx, "m1", "123456789")
	require.NoError(t, err)
	assert.Nil(t, item, "missing item should return nil, nil")

	require.NoError(t, store.Upsert(ctx, &catalog.Item{
		MerchantID: "m1",
		NaturalID:  "123456789",
		Name:       "New Product 1",
		Price:      150000,
	}))

	item, err = store.FindByNaturalID(ctx, "m1", "123456789")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "New Product 1", item.Name)

	// Merchant scoping: same natural id under another merchant is absent.
	item, err = store.FindByNaturalID(ctx, "m2", "123456789")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestUpsertLastWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.New()

	first := &catalog.Item{MerchantID: "m1", NaturalID: "p1", Name: "Old", Price: 100}
	second := &catalog.Item{MerchantID: "m1", NaturalID: "p1", Name: "New", Price: 200}

	require.NoError(t, store.Upsert(ctx, first))
	require.NoError(t, store.Upsert(ctx, second))

	item, err := store.FindByNaturalID(ctx, "m1", "p1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "New", item.Name)
	assert.Equal(t, int64(200), item.Price)
}

func TestUpsertConcurrentSameKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "p1", Name: "Product"})
		}()
	}
	wg.Wait()

	item, err := store.FindByNaturalID(ctx, "m1", "p1")
	require.NoError(t, err)
	require.NotNil(t, item, "concurrent upserts must converge on a single record")
}

func TestExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.New()

	ok, err := store.Exists(ctx, "m1", "parent-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "parent-1", Name: "Parent"}))
	ok, err = store.Exists(ctx, "m1", "parent-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// A variant never satisfies a parent lookup.
	require.NoError(t, store.Upsert(ctx, &catalog.Item{
		MerchantID: "m1", NaturalID: "var-1", Name: "Variant",
		IsVariant: true, ParentNaturalID: "parent-1",
	}))
	ok, err = store.Exists(ctx, "m1", "var-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
