package v0_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v0 "github.com/openmerch/catalog-sync/internal/api/v0"
	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/pipeline/coordinator"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

// stubCoordinator returns canned responses for handler-level tests.
type stubCoordinator struct {
	lastInput coordinator.SyncInput
	request   *tracker.Request
	err       error
}

func (s *stubCoordinator) StartSync(_ context.Context, input coordinator.SyncInput) (*tracker.Request, error) {
	s.lastInput = input
	return s.request, s.err
}

func (*stubCoordinator) EstimateDuration(itemCount int) time.Duration {
	return time.Duration(itemCount) * time.Second
}

type countingMetrics struct {
	accepted int
	rejected int
}

func (m *countingMetrics) SyncRequest(_ string, accepted bool) {
	if accepted {
		m.accepted++
	} else {
		m.rejected++
	}
}

func TestPostSyncAccepted(t *testing.T) {
	t.Parallel()
	stub := &stubCoordinator{
		request: &tracker.Request{
			ID:     "req-1",
			Status: tracker.StatusQueued,
			Stats:  tracker.Stats{Total: 2},
		},
	}
	metrics := &countingMetrics{}
	router := v0.Router(stub, tracker.NewInMemory(), metrics)

	body := `{
		"merchantId": "m1",
		"insert": [{"barcode": "123456789", "title": "New Product 1", "price": 150000, "stock": 10}],
		"update": [{"barcode": "456789123", "title": "Updated Product", "price": 180000, "stock": 8}]
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp v0.SyncResponse
	require.NoError(t, decodeBody(rec, &resp))
	assert.Equal(t, "req-1", resp.SyncID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 2, resp.TotalItems)
	assert.Equal(t, 2, resp.EstimatedSeconds)
	assert.Equal(t, "/api/v0/sync-status/req-1", resp.StatusURL)

	assert.Equal(t, coordinator.OperationExplicitItems, stub.lastInput.Operation)
	require.Len(t, stub.lastInput.InsertItems, 1)
	assert.Equal(t, "123456789", stub.lastInput.InsertItems[0].NaturalID)
	assert.Equal(t, "New Product 1", stub.lastInput.InsertItems[0].Name)
	assert.Equal(t, int64(150000), stub.lastInput.InsertItems[0].Price)
	assert.Equal(t, 10, stub.lastInput.InsertItems[0].StockQuantity)
	require.Len(t, stub.lastInput.UpdateItems, 1)

	assert.Equal(t, 1, metrics.accepted)
	assert.Zero(t, metrics.rejected)
}

func TestPostSyncRejectsInvalidMerchant(t *testing.T) {
	t.Parallel()
	stub := &stubCoordinator{err: fmt.Errorf("%w: ghost", pipeline.ErrMerchantInvalid)}
	metrics := &countingMetrics{}
	router := v0.Router(stub, tracker.NewInMemory(), metrics)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync",
		strings.NewReader(`{"merchantId": "ghost"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp v0.ErrorResponse
	require.NoError(t, decodeBody(rec, &resp))
	assert.Contains(t, resp.Error, "ghost")
	assert.Equal(t, 1, metrics.rejected)
}

func TestPostSyncRequiresMerchantID(t *testing.T) {
	t.Parallel()
	router := v0.Router(&stubCoordinator{}, tracker.NewInMemory(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync",
		strings.NewReader(`{"insert": []}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostSyncMalformedBody(t *testing.T) {
	t.Parallel()
	router := v0.Router(&stubCoordinator{}, tracker.NewInMemory(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync",
		strings.NewReader(`{not json`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSyncStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	trk := tracker.NewInMemory()
	req, err := trk.Create(ctx, "m1", 2, 0)
	require.NoError(t, err)
	require.NoError(t, trk.AddBatches(ctx, req.ID, 1))
	require.NoError(t, trk.RecordBatchOutcome(ctx, req.ID, tracker.BatchOutcome{
		Succeeded: 1,
		Failed:    1,
		Errors:    []tracker.ItemError{{ProductCode: "456789123", Error: "item has no name"}},
	}))

	router := v0.Router(&stubCoordinator{}, trk, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync-status/"+req.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp v0.StatusResponse
	require.NoError(t, decodeBody(rec, &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 2, resp.TotalProcessed)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 1, resp.ErrorCount)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "456789123", resp.Errors[0].ProductCode)
}

func TestGetSyncStatusNotFound(t *testing.T) {
	t.Parallel()
	router := v0.Router(&stubCoordinator{}, tracker.NewInMemory(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync-status/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		router := v0.HealthRouter(nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		router := v0.HealthRouter(func(context.Context) error { return nil })
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		router := v0.HealthRouter(func(context.Context) error {
			return fmt.Errorf("database unreachable")
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp v0.ErrorResponse
		require.NoError(t, decodeBody(rec, &resp))
		assert.Contains(t, resp.Error, "database unreachable")
	})
}

func decodeBody(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}
