package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/source"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "marked transient",
			err:  pipeline.MarkTransient(errors.New("flaky")),
			want: true,
		},
		{
			name: "wrapped marked transient",
			err:  fmt.Errorf("fetch: %w", pipeline.MarkTransient(errors.New("flaky"))),
			want: true,
		},
		{
			name: "http 500",
			err:  source.NewHTTPError(500, "http://inv", "server error"),
			want: true,
		},
		{
			name: "http 503",
			err:  source.NewHTTPError(503, "http://inv", "unavailable"),
			want: true,
		},
		{
			name: "http 404",
			err:  source.NewHTTPError(404, "http://inv", "not found"),
			want: false,
		},
		{
			name: "http 400",
			err:  source.NewHTTPError(400, "http://inv", "bad request"),
			want: false,
		},
		{
			name: "network timeout",
			err:  &net.DNSError{Err: "timeout", IsTimeout: true},
			want: true,
		},
		{
			name: "context deadline",
			err:  fmt.Errorf("call: %w", context.DeadlineExceeded),
			want: true,
		},
		{
			name: "context cancelled",
			err:  context.Canceled,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, pipeline.IsTransient(tt.err))
		})
	}
}

func TestMarkTransientNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, pipeline.MarkTransient(nil))
}

func TestFatalErrorUnwrap(t *testing.T) {
	t.Parallel()
	err := pipeline.NewFatalError(pipeline.ReasonMerchantInvalid, pipeline.ErrMerchantInvalid)
	assert.ErrorIs(t, err, pipeline.ErrMerchantInvalid)
	assert.Contains(t, err.Error(), pipeline.ReasonMerchantInvalid)
}

func TestResultOutcomeExcludesDeferred(t *testing.T) {
	t.Parallel()
	result := &pipeline.Result{
		State:     pipeline.BatchStateCompleted,
		Succeeded: 5,
		Deferred:  2,
	}
	outcome := result.Outcome()
	assert.Equal(t, 5, outcome.Succeeded)
	assert.Zero(t, outcome.Failed)
	assert.False(t, outcome.Aborted)
}
