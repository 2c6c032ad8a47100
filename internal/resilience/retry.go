package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn until it succeeds, ctx is cancelled, or bo stops yielding
// delays. It is the generic backoff helper used by internal/dlq.Service.Retry
// for the couple of immediate attempts a manual/bulk DLQ retry gets against a
// transient collaborator failure (§4.G), layered on
// github.com/cenkalti/backoff/v4 per SPEC_FULL.md's resilience wiring; the
// Action Chain Executor itself uses the spec's explicit
// initial_delay_ms*backoff_multiplier^(attempt-1) formula
// (domain.RetryConfig.Delay) rather than this helper, since §4.F specifies
// that formula exactly.
func Retry(ctx context.Context, bo backoff.BackOff, fn func() error) error {
	return backoff.Retry(fn, backoff.WithContext(bo, ctx))
}

// NewBoundedExponentialBackoff builds a jittered exponential backoff capped
// at maxElapsed total; internal/dlq.Service.Retry uses it to space the
// attempts it makes at one entry so they don't hammer the downstream
// collaborator.
func NewBoundedExponentialBackoff(initial time.Duration, maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxElapsedTime = maxElapsed
	return b
}
