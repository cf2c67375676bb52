package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

// OrphanState is the state of a deferred variant write.
type OrphanState string

const (
	// OrphanStatePending means the parent has not been observed yet
	OrphanStatePending OrphanState = "pending"

	// OrphanStateResolved means the deferred write succeeded
	OrphanStateResolved OrphanState = "resolved"

	// OrphanStateExhausted means the attempt budget ran out with the
	// parent still missing
	OrphanStateExhausted OrphanState = "exhausted"
)

// OrphanRecord is a variant write deferred by the ordering gate.
type OrphanRecord struct {
	Item            catalog.Item
	MissingParentID string
	RequestID       string
	Snapshot        config.MerchantSnapshot
	Attempt         int
	State           OrphanState
}

// OrphanMetrics receives orphan lifecycle counts.
type OrphanMetrics interface {
	OrphanDeferred()
	OrphanResolved()
	OrphanExhausted()
}

// OrphanRetryManager re-attempts deferred variant writes: on a fixed
// interval and on parent-write completion events. Each record moves
// pending -> resolved | exhausted; exhaustion is always reported to the
// owning sync request's error list, never silently dropped.
type OrphanRetryManager struct {
	store    catalog.Store
	resolver *UpsertResolver
	tracker  tracker.Tracker

	interval    time.Duration
	maxAttempts int
	metrics     OrphanMetrics

	mu      sync.Mutex
	pending []*OrphanRecord
}

// OrphanOption configures the manager.
type OrphanOption func(*OrphanRetryManager)

// WithOrphanInterval sets the fixed re-check interval.
func WithOrphanInterval(d time.Duration) OrphanOption {
	return func(m *OrphanRetryManager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithOrphanMaxAttempts sets the attempt budget per record.
func WithOrphanMaxAttempts(n int) OrphanOption {
	return func(m *OrphanRetryManager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithOrphanMetrics installs lifecycle metrics.
func WithOrphanMetrics(metrics OrphanMetrics) OrphanOption {
	return func(m *OrphanRetryManager) {
		m.metrics = metrics
	}
}

// NewOrphanRetryManager creates a manager writing deferred variants
// through the resolver and reporting terminal outcomes to the tracker.
func NewOrphanRetryManager(
	store catalog.Store, resolver *UpsertResolver, trk tracker.Tracker, opts ...OrphanOption,
) *OrphanRetryManager {
	m := &OrphanRetryManager{
		store:       store,
		resolver:    resolver,
		tracker:     trk,
		interval:    config.DefaultOrphanRetryInterval,
		maxAttempts: config.DefaultOrphanMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ OrphanSink = (*OrphanRetryManager)(nil)

// Defer registers a deferred variant write.
func (m *OrphanRetryManager) Defer(record OrphanRecord) {
	record.State = OrphanStatePending

	m.mu.Lock()
	m.pending = append(m.pending, &record)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.OrphanDeferred()
	}
	slog.Info("Deferred variant write, parent not yet present",
		"merchant", record.Item.MerchantID,
		"natural_id", record.Item.NaturalID,
		"missing_parent", record.MissingParentID)
}

// PendingCount reports the number of records still pending.
func (m *OrphanRetryManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// NotifyParentWritten re-checks the orphans waiting on the given parent
// immediately. Called by workers after every successful non-variant write.
func (m *OrphanRetryManager) NotifyParentWritten(ctx context.Context, merchantID, parentNaturalID string) {
	m.mu.Lock()
	var matched []*OrphanRecord
	for _, rec := range m.pending {
		if rec.Item.MerchantID == merchantID && rec.MissingParentID == parentNaturalID {
			matched = append(matched, rec)
		}
	}
	m.mu.Unlock()

	for _, rec := range matched {
		m.attempt(ctx, rec)
	}
	m.compact()
}

// Run drives the fixed-interval re-check loop until the context is
// cancelled.
func (m *OrphanRetryManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep re-checks every pending record once.
func (m *OrphanRetryManager) Sweep(ctx context.Context) {
	m.mu.Lock()
	records := append([]*OrphanRecord(nil), m.pending...)
	m.mu.Unlock()

	for _, rec := range records {
		m.attempt(ctx, rec)
	}
	m.compact()
}

// attempt performs one state-machine step for a record.
func (m *OrphanRetryManager) attempt(ctx context.Context, rec *OrphanRecord) {
	m.mu.Lock()
	if rec.State != OrphanStatePending {
		m.mu.Unlock()
		return
	}
	rec.Attempt++
	attempt := rec.Attempt
	m.mu.Unlock()

	exists, err := m.store.Exists(ctx, rec.Item.MerchantID, rec.MissingParentID)
	if err == nil && exists {
		if _, err = m.resolver.Resolve(ctx, rec.Snapshot, &rec.Item); err == nil {
			// A concurrent sweep and parent notification can both reach
			// here; only the transition winner reports the outcome.
			if !m.transition(rec, OrphanStateResolved) {
				return
			}
			if m.metrics != nil {
				m.metrics.OrphanResolved()
			}
			if trkErr := m.tracker.RecordDeferredResolved(ctx, rec.RequestID); trkErr != nil {
				slog.Error("Failed to record resolved orphan", "request_id", rec.RequestID, "error", trkErr)
			}
			slog.Info("Deferred variant write resolved",
				"merchant", rec.Item.MerchantID,
				"natural_id", rec.Item.NaturalID,
				"attempt", attempt)
			return
		}
	}
	if err != nil {
		slog.Warn("Orphan re-check failed",
			"natural_id", rec.Item.NaturalID,
			"attempt", attempt,
			"error", err)
	}

	if attempt >= m.maxAttempts {
		if !m.transition(rec, OrphanStateExhausted) {
			return
		}
		if m.metrics != nil {
			m.metrics.OrphanExhausted()
		}
		itemErr := tracker.ItemError{
			ProductCode: rec.Item.NaturalID,
			Error: fmt.Sprintf("parent %s still missing after %d attempts",
				rec.MissingParentID, attempt),
		}
		if trkErr := m.tracker.RecordDeferredExhausted(ctx, rec.RequestID, itemErr); trkErr != nil {
			slog.Error("Failed to record exhausted orphan", "request_id", rec.RequestID, "error", trkErr)
		}
		slog.Error("Orphan attempts exhausted",
			"merchant", rec.Item.MerchantID,
			"natural_id", rec.Item.NaturalID,
			"missing_parent", rec.MissingParentID,
			"attempts", attempt)
	}
}

// transition moves the record out of pending. Returns false when another
// goroutine already finalized it; the caller must not report the outcome
// again.
func (m *OrphanRetryManager) transition(rec *OrphanRecord, state OrphanState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.State != OrphanStatePending {
		return false
	}
	rec.State = state
	return true
}

// compact drops records that reached a terminal state.
func (m *OrphanRetryManager) compact() {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.pending[:0]
	for _, rec := range m.pending {
		if rec.State == OrphanStatePending {
			kept = append(kept, rec)
		}
	}
	for i := len(kept); i < len(m.pending); i++ {
		m.pending[i] = nil
	}
	m.pending = kept
}
