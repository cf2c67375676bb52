// Package pipeline implements the reconciliation pipeline: batch
// splitting, dispatch pacing, ordering-aware upserts and bounded retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/openmerch/catalog-sync/internal/source"
)

// Batch-fatal reasons. A batch-fatal error stops only its own batch;
// already-dispatched sibling batches are unaffected.
const (
	ReasonMerchantInvalid    = "merchant-invalid"
	ReasonCredentialsMissing = "credentials-missing"
)

// Sentinel errors for the batch-fatal preconditions.
var (
	// ErrMerchantInvalid means the merchant license is inactive or the
	// merchant is unknown. Never retried.
	ErrMerchantInvalid = errors.New("merchant license inactive or missing")

	// ErrCredentialsMissing means required API credentials are absent.
	ErrCredentialsMissing = errors.New("merchant credentials missing")
)

// FatalError invalidates an entire batch. It is the only error class that
// escalates past item level; everything else is folded into the batch
// result.
type FatalError struct {
	Err    error
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("batch-fatal (%s): %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps a batch-fatal condition.
func NewFatalError(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// transientError marks an error as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so IsTransient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient classifies an error as a transient remote failure: network
// errors, timeouts, and 5xx responses. Transient errors are retried with
// backoff up to a fixed budget before becoming item-level failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}

	var httpErr *source.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
