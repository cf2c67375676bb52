package tracker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmerch/catalog-sync/internal/tracker"
)

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	req, err := tr.Create(ctx, "merchant-1", 3, 2)
	require.NoError(t, err)
	require.NotEmpty(t, req.ID)
	assert.Equal(t, tracker.StatusQueued, req.Status)
	assert.Equal(t, 5, req.Stats.Total)

	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, "merchant-1", got.MerchantID)
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	tr := tracker.NewInMemory()
	_, err := tr.Get(context.Background(), "missing")
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	req, err := tr.Create(ctx, "merchant-1", 2, 0)
	require.NoError(t, err)
	require.NoError(t, tr.AddBatches(ctx, req.ID, 2))

	// queued -> processing on first batch start.
	require.NoError(t, tr.RecordBatchStart(ctx, req.ID))
	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusProcessing, got.Status)

	// Still processing after the first of two batches.
	require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{Succeeded: 1}))
	got, err = tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusProcessing, got.Status)
	assert.Nil(t, got.CompletedAt)

	// Completed once all batches are terminal.
	require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{
		Succeeded: 0,
		Failed:    1,
		Errors:    []tracker.ItemError{{ProductCode: "p2", Error: "validation failed"}},
	}))
	got, err = tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, got.Stats.Succeeded)
	assert.Equal(t, 1, got.Stats.Failed)
	require.Len(t, got.Stats.Errors, 1)
	assert.Equal(t, "p2", got.Stats.Errors[0].ProductCode)
}

func TestAllBatchesAbortedStillCompletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	req, err := tr.Create(ctx, "merchant-1", 4, 0)
	require.NoError(t, err)
	require.NoError(t, tr.AddBatches(ctx, req.ID, 2))

	for i := 0; i < 2; i++ {
		require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{Aborted: true}))
	}

	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, got.Status, "no global failed status exists")
	assert.Zero(t, got.Stats.Succeeded)
	assert.Equal(t, 2, got.AbortedBatches)
}

func TestContinuationGrowsBatchTotal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	req, err := tr.Create(ctx, "merchant-1", 10, 0)
	require.NoError(t, err)
	require.NoError(t, tr.AddBatches(ctx, req.ID, 1))
	require.NoError(t, tr.RecordBatchStart(ctx, req.ID))

	// The worker hands off a continuation before finishing its own batch.
	require.NoError(t, tr.AddBatches(ctx, req.ID, 1))
	require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{Succeeded: 5}))

	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusProcessing, got.Status, "continuation keeps the request open")

	require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{Succeeded: 5}))
	got, err = tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, got.Status)
	assert.Equal(t, 10, got.Stats.Succeeded)
}

func TestDeferredOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	req, err := tr.Create(ctx, "merchant-1", 2, 0)
	require.NoError(t, err)
	require.NoError(t, tr.AddBatches(ctx, req.ID, 1))
	require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{Succeeded: 1}))

	// Orphan outcomes may land after the request completed.
	require.NoError(t, tr.RecordDeferredResolved(ctx, req.ID))
	require.NoError(t, tr.RecordDeferredExhausted(ctx, req.ID, tracker.ItemError{
		ProductCode: "var-1",
		Error:       "parent parent-9 never appeared",
	}))

	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stats.Succeeded)
	assert.Equal(t, 1, got.Stats.Failed)
	require.Len(t, got.Stats.Errors, 1)
	assert.Contains(t, got.Stats.Errors[0].Error, "parent-9")
}

func TestConcurrentBatchOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	const batches = 20
	req, err := tr.Create(ctx, "merchant-1", batches, 0)
	require.NoError(t, err)
	require.NoError(t, tr.AddBatches(ctx, req.ID, batches))

	var wg sync.WaitGroup
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{Succeeded: 1})
		}()
	}
	wg.Wait()

	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, batches, got.Stats.Succeeded, "no lost counter updates")
	assert.Equal(t, tracker.StatusCompleted, got.Status)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := tracker.NewInMemory()

	req, err := tr.Create(ctx, "merchant-1", 1, 0)
	require.NoError(t, err)
	require.NoError(t, tr.AddBatches(ctx, req.ID, 1))
	require.NoError(t, tr.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{
		Failed: 1,
		Errors: []tracker.ItemError{{ProductCode: "p1", Error: "boom"}},
	}))

	got, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	got.Stats.Errors[0].Error = "mutated"

	fresh, err := tr.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", fresh.Stats.Errors[0].Error)
}
