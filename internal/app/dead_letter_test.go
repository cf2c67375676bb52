package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/pipeline/coordinator"
	"github.com/openmerch/catalog-sync/internal/queue"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

func deadLetterTask(t *testing.T, kind string, payload any) *queue.Task {
	t.Helper()
	body, err := queue.Marshal(payload)
	require.NoError(t, err)
	return &queue.Task{ID: "t1", Kind: kind, Payload: body}
}

func settledRequest(t *testing.T, trk tracker.Tracker) *tracker.Request {
	t.Helper()
	ctx := context.Background()
	req, err := trk.Create(ctx, "m1", 2, 0)
	require.NoError(t, err)
	require.NoError(t, trk.AddBatches(ctx, req.ID, 1))
	return req
}

func TestDeadLetterSettlesBatchTask(t *testing.T) {
	t.Parallel()
	trk := tracker.NewInMemory()
	req := settledRequest(t, trk)

	task := deadLetterTask(t, pipeline.TaskKindSyncBatch, pipeline.BatchTaskPayload{
		Batch: pipeline.Batch{ID: "b1", RequestID: req.ID, MerchantID: "m1"},
	})
	deadLetterFunc(trk)(task, errors.New("handler kept failing"))

	tracked, err := trk.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, tracked.Status, "request must not stay in processing")
	assert.Equal(t, 1, tracked.AbortedBatches)
}

func TestDeadLetterSettlesEnumerationTask(t *testing.T) {
	t.Parallel()
	trk := tracker.NewInMemory()
	req := settledRequest(t, trk)

	task := deadLetterTask(t, coordinator.TaskKindEnumerate, coordinator.EnumerateTaskPayload{
		RequestID:  req.ID,
		MerchantID: "m1",
	})
	deadLetterFunc(trk)(task, errors.New("handler kept failing"))

	tracked, err := trk.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, tracked.Status)
	assert.Equal(t, 1, tracked.AbortedBatches)
}

func TestDeadLetterIgnoresUnknownKind(t *testing.T) {
	t.Parallel()
	trk := tracker.NewInMemory()
	req := settledRequest(t, trk)

	task := deadLetterTask(t, "some-other-kind", struct{}{})
	deadLetterFunc(trk)(task, errors.New("handler kept failing"))

	tracked, err := trk.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Zero(t, tracked.AbortedBatches)
}
