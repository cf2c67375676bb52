package source_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmerch/catalog-sync/internal/source"
)

func TestStaticFetchItems(t *testing.T) {
	t.Parallel()

	inv := source.NewStatic(
		source.ItemSnapshot{NaturalID: "p1", Name: "Product 1"},
		source.ItemSnapshot{NaturalID: "p2", Name: "Product 2"},
	)

	result, err := inv.FetchItems(context.Background(), []string{"p1", "missing"})
	require.NoError(t, err)

	require.NotNil(t, result["p1"])
	assert.Equal(t, "Product 1", result["p1"].Name)

	missing, present := result["missing"]
	assert.True(t, present)
	assert.Nil(t, missing)
}

func TestStaticAddReplaces(t *testing.T) {
	t.Parallel()

	inv := source.NewStatic(source.ItemSnapshot{NaturalID: "p1", Name: "Old"})
	inv.Add(source.ItemSnapshot{NaturalID: "p1", Name: "New"})

	result, err := inv.FetchItems(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, "New", result["p1"].Name)
}

func TestStaticEnumerate(t *testing.T) {
	t.Parallel()

	inv := source.NewStatic(
		source.ItemSnapshot{NaturalID: "p1"},
		source.ItemSnapshot{NaturalID: "p2"},
		source.ItemSnapshot{NaturalID: "p3"},
	)

	ctx := context.Background()
	var seen []string
	cursor := ""
	for {
		page, err := inv.Enumerate(ctx, cursor, 2)
		require.NoError(t, err)
		for _, snap := range page.Snapshots {
			seen = append(seen, snap.NaturalID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"p1", "p2", "p3"}, seen)
}

func TestStaticEnumerateBadCursor(t *testing.T) {
	t.Parallel()

	inv := source.NewStatic(source.ItemSnapshot{NaturalID: "p1"})
	_, err := inv.Enumerate(context.Background(), "not-a-number", 1)
	require.Error(t, err)
}
