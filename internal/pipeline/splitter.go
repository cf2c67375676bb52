package pipeline

import "github.com/openmerch/catalog-sync/internal/catalog"

// Split partitions items into groups of at most batchSize, ordering
// non-variant items stably before variants. Concatenating the groups
// reconstructs the input set exactly: no loss, no duplication, and the
// original relative order is preserved within each class.
//
// Split is a pure function: identical input and batchSize always produce
// identical output. Parents-first ordering minimizes (but cannot
// eliminate) cross-batch orphan deferrals; the ordering gate absorbs the
// rest.
func Split(items []catalog.Item, batchSize int) [][]catalog.Item {
	if len(items) == 0 {
		return nil
	}
	if batchSize < 1 {
		batchSize = 1
	}

	ordered := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		if !item.IsVariant {
			ordered = append(ordered, item)
		}
	}
	for _, item := range items {
		if item.IsVariant {
			ordered = append(ordered, item)
		}
	}

	batches := make([][]catalog.Item, 0, (len(ordered)+batchSize-1)/batchSize)
	for start := 0; start < len(ordered); start += batchSize {
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batches = append(batches, ordered[start:end:end])
	}
	return batches
}
