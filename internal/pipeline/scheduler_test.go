package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openmerch/catalog-sync/internal/pipeline"
)

func TestDelayFor(t *testing.T) {
	t.Parallel()

	sched := pipeline.NewDelayScheduler(0, 15*time.Second)

	// Three batches with a 15s step: 0s, 15s, 30s.
	assert.Equal(t, 0*time.Second, sched.DelayFor(0))
	assert.Equal(t, 15*time.Second, sched.DelayFor(1))
	assert.Equal(t, 30*time.Second, sched.DelayFor(2))
}

func TestDelayForWithBase(t *testing.T) {
	t.Parallel()

	sched := pipeline.NewDelayScheduler(5*time.Second, 10*time.Second)
	assert.Equal(t, 5*time.Second, sched.DelayFor(0))
	assert.Equal(t, 25*time.Second, sched.DelayFor(2))
}

func TestDelayForMonotonic(t *testing.T) {
	t.Parallel()

	sched := pipeline.NewDelayScheduler(2*time.Second, 7*time.Second)
	prev := time.Duration(-1)
	for i := 0; i < 50; i++ {
		d := sched.DelayFor(i)
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestDelayForClampsNegatives(t *testing.T) {
	t.Parallel()

	sched := pipeline.NewDelayScheduler(-time.Second, -time.Second)
	assert.Equal(t, time.Duration(0), sched.DelayFor(-3))
	assert.Equal(t, time.Duration(0), sched.DelayFor(10))
}
