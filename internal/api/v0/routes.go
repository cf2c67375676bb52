// Package v0 provides the REST API handlers for sync submission and
// status polling.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/pipeline/coordinator"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

// SyncItem is the wire form of one submitted item. The barcode is the
// merchant-stable natural id.
type SyncItem struct {
	Barcode         string `json:"barcode"`
	Title           string `json:"title,omitempty"`
	Price           int64  `json:"price,omitempty"`
	DiscountedPrice int64  `json:"discountedPrice,omitempty"`
	Stock           int    `json:"stock,omitempty"`
	ParentBarcode   string `json:"parentBarcode,omitempty"`
	IsVariant       bool   `json:"isVariant,omitempty"`
}

// SyncRequest is the body of POST /api/v0/sync.
type SyncRequest struct {
	MerchantID string `json:"merchantId"`

	// Operation selects explicit-items (default) or full-catalog.
	Operation string `json:"operation,omitempty"`

	Insert []SyncItem `json:"insert,omitempty"`
	Update []SyncItem `json:"update,omitempty"`
}

// SyncResponse acknowledges an accepted sync submission.
type SyncResponse struct {
	SyncID           string `json:"syncId"`
	Status           string `json:"status"`
	TotalItems       int    `json:"totalItems"`
	EstimatedSeconds int    `json:"estimatedSeconds"`
	StatusURL        string `json:"statusUrl"`
}

// StatusResponse reports the aggregate progress of a sync request.
type StatusResponse struct {
	Status         string          `json:"status"`
	TotalProcessed int             `json:"total_processed"`
	SuccessCount   int             `json:"success_count"`
	ErrorCount     int             `json:"error_count"`
	Errors         []StatusItemErr `json:"errors,omitempty"`
}

// StatusItemErr is one item-level failure in a status response.
type StatusItemErr struct {
	ProductCode string `json:"product_code"`
	Error       string `json:"error"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReadinessFunc probes dependencies for the readiness endpoint.
type ReadinessFunc func(ctx context.Context) error

// SubmissionMetrics counts sync submissions.
type SubmissionMetrics interface {
	SyncRequest(operation string, accepted bool)
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	coordinator coordinator.Coordinator
	tracker     tracker.Tracker
	metrics     SubmissionMetrics
}

// NewRoutes creates a new Routes instance with the provided collaborators
func NewRoutes(coord coordinator.Coordinator, trk tracker.Tracker, metrics SubmissionMetrics) *Routes {
	return &Routes{
		coordinator: coord,
		tracker:     trk,
		metrics:     metrics,
	}
}

// Router creates a new router for the sync API
func Router(coord coordinator.Coordinator, trk tracker.Tracker, metrics SubmissionMetrics) http.Handler {
	routes := NewRoutes(coord, trk, metrics)

	r := chi.NewRouter()
	r.Post("/sync", routes.postSync)
	r.Get("/sync-status/{syncId}", routes.getSyncStatus)
	return r
}

// postSync handles POST /api/v0/sync
func (rr *Routes) postSync(w http.ResponseWriter, r *http.Request) {
	var body SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rr.writeErrorResponse(w, "Malformed request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.MerchantID == "" {
		rr.writeErrorResponse(w, "merchantId is required", http.StatusBadRequest)
		return
	}

	operation := coordinator.OperationExplicitItems
	if body.Operation != "" {
		operation = coordinator.Operation(body.Operation)
	}

	input := coordinator.SyncInput{
		MerchantID:  body.MerchantID,
		Operation:   operation,
		InsertItems: toItems(body.Insert),
		UpdateItems: toItems(body.Update),
	}

	req, err := rr.coordinator.StartSync(r.Context(), input)
	if rr.metrics != nil {
		rr.metrics.SyncRequest(string(operation), err == nil)
	}
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrMerchantInvalid):
			// The only synchronous client-visible rejection.
			rr.writeErrorResponse(w, "Merchant license inactive or unknown: "+body.MerchantID, http.StatusBadRequest)
		default:
			slog.Error("Failed to start sync", "merchant", body.MerchantID, "error", err)
			rr.writeErrorResponse(w, "Failed to start sync", http.StatusBadRequest)
		}
		return
	}

	total := req.Stats.Total
	rr.writeJSONResponse(w, http.StatusAccepted, SyncResponse{
		SyncID:           req.ID,
		Status:           string(req.Status),
		TotalItems:       total,
		EstimatedSeconds: int(rr.coordinator.EstimateDuration(total).Seconds()),
		StatusURL:        fmt.Sprintf("/api/v0/sync-status/%s", req.ID),
	})
}

// getSyncStatus handles GET /api/v0/sync-status/{syncId}
func (rr *Routes) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "syncId")

	req, err := rr.tracker.Get(r.Context(), syncID)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			rr.writeErrorResponse(w, "Sync request not found: "+syncID, http.StatusNotFound)
			return
		}
		slog.Error("Failed to load sync request", "sync_id", syncID, "error", err)
		rr.writeErrorResponse(w, "Failed to load sync request", http.StatusInternalServerError)
		return
	}

	resp := StatusResponse{
		Status:         string(req.Status),
		TotalProcessed: req.Stats.Succeeded + req.Stats.Failed,
		SuccessCount:   req.Stats.Succeeded,
		ErrorCount:     req.Stats.Failed,
	}
	for _, itemErr := range req.Stats.Errors {
		resp.Errors = append(resp.Errors, StatusItemErr{
			ProductCode: itemErr.ProductCode,
			Error:       itemErr.Error,
		})
	}
	rr.writeJSONResponse(w, http.StatusOK, resp)
}

// toItems maps wire items into catalog items. The merchant scope is set
// by the coordinator.
func toItems(in []SyncItem) []catalog.Item {
	if len(in) == 0 {
		return nil
	}
	items := make([]catalog.Item, 0, len(in))
	for _, wire := range in {
		items = append(items, catalog.Item{
			NaturalID:       wire.Barcode,
			Name:            wire.Title,
			Price:           wire.Price,
			DiscountedPrice: wire.DiscountedPrice,
			StockQuantity:   wire.Stock,
			ParentNaturalID: wire.ParentBarcode,
			IsVariant:       wire.IsVariant,
		})
	}
	return items
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(readiness ReadinessFunc) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(readiness))
	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(probe ReadinessFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if probe != nil {
			if err := probe(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				if encodeErr := json.NewEncoder(w).Encode(ErrorResponse{
					Error: "Service not ready: " + err.Error(),
				}); encodeErr != nil {
					slog.Error("Failed to encode readiness error response", "error", encodeErr)
				}
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
