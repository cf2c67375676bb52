package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/catalog/inmemory"
	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

func newOrphanFixture(t *testing.T) (catalog.Store, *pipeline.OrphanRetryManager, tracker.Tracker, string) {
	t.Helper()
	store := inmemory.New()
	trk := tracker.NewInMemory()
	resolver := pipeline.NewUpsertResolver(store)
	manager := pipeline.NewOrphanRetryManager(store, resolver, trk,
		pipeline.WithOrphanMaxAttempts(3),
		pipeline.WithOrphanInterval(10*time.Millisecond),
	)

	req, err := trk.Create(context.Background(), "m1", 1, 0)
	require.NoError(t, err)
	return store, manager, trk, req.ID
}

func deferredVariant(requestID string) pipeline.OrphanRecord {
	return pipeline.OrphanRecord{
		Item: catalog.Item{
			MerchantID:      "m1",
			NaturalID:       "var-1",
			Name:            "Variant",
			IsVariant:       true,
			ParentNaturalID: "parent-1",
		},
		MissingParentID: "parent-1",
		RequestID:       requestID,
		Snapshot:        allFields(),
	}
}

func TestOrphanResolvedOnSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, manager, trk, reqID := newOrphanFixture(t)

	manager.Defer(deferredVariant(reqID))
	require.Equal(t, 1, manager.PendingCount())

	// Parent not there yet: one attempt burned, still pending.
	manager.Sweep(ctx)
	assert.Equal(t, 1, manager.PendingCount())

	require.NoError(t, store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "parent-1", Name: "Parent"}))
	manager.Sweep(ctx)
	assert.Zero(t, manager.PendingCount())

	stored, err := store.FindByNaturalID(ctx, "m1", "var-1")
	require.NoError(t, err)
	require.NotNil(t, stored, "deferred write performed once parent appeared")

	req, err := trk.Get(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Stats.Succeeded)
	assert.Zero(t, req.Stats.Failed)
}

func TestOrphanExhaustedAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, manager, trk, reqID := newOrphanFixture(t)

	manager.Defer(deferredVariant(reqID))

	// With maxAttempts=3 and a parent that never appears, the record is
	// exhausted after exactly 3 attempts.
	manager.Sweep(ctx)
	manager.Sweep(ctx)
	assert.Equal(t, 1, manager.PendingCount(), "still pending after 2 of 3 attempts")

	manager.Sweep(ctx)
	assert.Zero(t, manager.PendingCount())

	// Further sweeps must not double-report.
	manager.Sweep(ctx)

	req, err := trk.Get(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Stats.Failed)
	require.Len(t, req.Stats.Errors, 1)
	assert.Equal(t, "var-1", req.Stats.Errors[0].ProductCode)
	assert.Contains(t, req.Stats.Errors[0].Error, "parent-1", "permanent error references the missing parent id")

	stored, err := store.FindByNaturalID(ctx, "m1", "var-1")
	require.NoError(t, err)
	assert.Nil(t, stored, "exhausted variant was never written")
}

func TestOrphanResolvedOnParentNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, manager, trk, reqID := newOrphanFixture(t)

	manager.Defer(deferredVariant(reqID))

	require.NoError(t, store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "parent-1", Name: "Parent"}))
	manager.NotifyParentWritten(ctx, "m1", "parent-1")

	assert.Zero(t, manager.PendingCount(), "notification resolves without waiting for the interval")

	req, err := trk.Get(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Stats.Succeeded)
}

func TestOrphanNotificationScopedToParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, manager, _, reqID := newOrphanFixture(t)

	manager.Defer(deferredVariant(reqID))

	// A different parent arriving must not consume an attempt.
	require.NoError(t, store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "parent-2", Name: "Other"}))
	manager.NotifyParentWritten(ctx, "m1", "parent-2")
	assert.Equal(t, 1, manager.PendingCount())

	// Same parent id under another merchant scope must not match either.
	manager.NotifyParentWritten(ctx, "m2", "parent-1")
	assert.Equal(t, 1, manager.PendingCount())
}

func TestOrphanRunLoop(t *testing.T) {
	t.Parallel()
	store, manager, trk, reqID := newOrphanFixture(t)

	manager.Defer(deferredVariant(reqID))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Run(ctx)
	}()

	require.NoError(t, store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "parent-1", Name: "Parent"}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && manager.PendingCount() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	assert.Zero(t, manager.PendingCount())
	req, err := trk.Get(context.Background(), reqID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Stats.Succeeded)
}

func TestOrphanConcurrentResolutionReportsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// The interval sweep and a worker's parent notification can race on
	// the same record; exactly one of them may report the resolution.
	for i := 0; i < 50; i++ {
		store, manager, trk, reqID := newOrphanFixture(t)
		manager.Defer(deferredVariant(reqID))
		require.NoError(t, store.Upsert(ctx, &catalog.Item{MerchantID: "m1", NaturalID: "parent-1", Name: "Parent"}))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			manager.Sweep(ctx)
		}()
		go func() {
			defer wg.Done()
			manager.NotifyParentWritten(ctx, "m1", "parent-1")
		}()
		wg.Wait()

		req, err := trk.Get(ctx, reqID)
		require.NoError(t, err)
		assert.Equal(t, 1, req.Stats.Succeeded, "double-reported resolution")
		assert.Zero(t, manager.PendingCount())
	}
}
