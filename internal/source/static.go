package source

import (
	"context"
	"strconv"
	"sync"
)

// Static is an in-memory Inventory backed by a fixed snapshot set. It is
// used by tests and by local development fixtures.
type Static struct {
	mu        sync.RWMutex
	snapshots []ItemSnapshot
	byID      map[string]int
}

var _ Inventory = (*Static)(nil)

// NewStatic creates a Static inventory holding the given snapshots.
func NewStatic(snapshots ...ItemSnapshot) *Static {
	s := &Static{
		snapshots: make([]ItemSnapshot, 0, len(snapshots)),
		byID:      make(map[string]int, len(snapshots)),
	}
	for _, snap := range snapshots {
		s.Add(snap)
	}
	return s
}

// Add inserts or replaces a snapshot.
func (s *Static) Add(snap ItemSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byID[snap.NaturalID]; ok {
		s.snapshots[i] = snap
		return
	}
	s.byID[snap.NaturalID] = len(s.snapshots)
	s.snapshots = append(s.snapshots, snap)
}

// FetchItems resolves snapshots by natural id; unknown ids map to nil.
func (s *Static) FetchItems(_ context.Context, naturalIDs []string) (map[string]*ItemSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*ItemSnapshot, len(naturalIDs))
	for _, id := range naturalIDs {
		if i, ok := s.byID[id]; ok {
			snap := s.snapshots[i]
			result[id] = &snap
		} else {
			result[id] = nil
		}
	}
	return result, nil
}

// Enumerate pages through the snapshot set in insertion order. The cursor
// is the stringified offset of the next element.
func (s *Static) Enumerate(_ context.Context, cursor string, limit int) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, NewHTTPError(400, "static", "malformed cursor: "+cursor)
		}
		offset = parsed
	}
	if limit <= 0 {
		limit = len(s.snapshots)
	}
	if offset >= len(s.snapshots) {
		return &Page{}, nil
	}

	end := offset + limit
	if end > len(s.snapshots) {
		end = len(s.snapshots)
	}
	page := &Page{Snapshots: append([]ItemSnapshot(nil), s.snapshots[offset:end]...)}
	if end < len(s.snapshots) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
