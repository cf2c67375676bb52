package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openmerch/catalog-sync/internal/config"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 500
	userAgent       = "catalog-sync/1.0"
)

// httpInventory fetches snapshots from a REST inventory endpoint.
type httpInventory struct {
	endpoint string
	pageSize int
	client   *http.Client
}

var _ Inventory = (*httpInventory)(nil)

// NewHTTPInventory creates an Inventory backed by the configured REST
// endpoint. Every call carries the configured wall-clock budget.
func NewHTTPInventory(cfg *config.SourceConfig) Inventory {
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &httpInventory{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

// itemsResponse is the wire shape of both fetch and enumerate responses.
type itemsResponse struct {
	Items      []ItemSnapshot `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// FetchItems resolves authoritative snapshots for the given natural ids.
func (h *httpInventory) FetchItems(ctx context.Context, naturalIDs []string) (map[string]*ItemSnapshot, error) {
	if len(naturalIDs) == 0 {
		return map[string]*ItemSnapshot{}, nil
	}

	reqURL := fmt.Sprintf("%s/items?ids=%s", h.endpoint, url.QueryEscape(strings.Join(naturalIDs, ",")))
	body, err := h.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode items response: %w", err)
	}

	// Every requested id gets an entry; missing ids keep the nil
	// not-found marker.
	result := make(map[string]*ItemSnapshot, len(naturalIDs))
	for _, id := range naturalIDs {
		result[id] = nil
	}
	for i := range resp.Items {
		snap := resp.Items[i]
		if _, requested := result[snap.NaturalID]; requested {
			result[snap.NaturalID] = &snap
		}
	}
	return result, nil
}

// Enumerate returns one page of the full catalog starting at the cursor.
func (h *httpInventory) Enumerate(ctx context.Context, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = h.pageSize
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	body, err := h.get(ctx, fmt.Sprintf("%s/items?%s", h.endpoint, q.Encode()))
	if err != nil {
		return nil, err
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode enumeration response: %w", err)
	}
	return &Page{Snapshots: resp.Items, NextCursor: resp.NextCursor}, nil
}

// get performs a GET request and returns the response body. Non-2xx
// statuses surface as HTTPError so callers can classify them.
func (h *httpInventory) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, reqURL, strings.TrimSpace(string(body)))
	}
	return body, nil
}
