package pipeline

import "time"

// DelayScheduler assigns monotonically increasing dispatch delays across
// the batches of one request so dispatch does not overload fragile
// upstream APIs. The delay is handed to the queue's visibility-delay
// primitive; it is a scheduling hint, not an ordering guarantee - a
// stalled worker may still execute batches out of order.
type DelayScheduler struct {
	base time.Duration
	step time.Duration
}

// NewDelayScheduler creates a scheduler with the given base and per-batch
// step delays. Negative values are clamped to zero.
func NewDelayScheduler(base, step time.Duration) *DelayScheduler {
	if base < 0 {
		base = 0
	}
	if step < 0 {
		step = 0
	}
	return &DelayScheduler{base: base, step: step}
}

// DelayFor returns the dispatch delay of the i-th batch:
// base + i*step. Deterministic and independent of batch content.
func (s *DelayScheduler) DelayFor(sequenceIndex int) time.Duration {
	if sequenceIndex < 0 {
		sequenceIndex = 0
	}
	return s.base + time.Duration(sequenceIndex)*s.step
}
