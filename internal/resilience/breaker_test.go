package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/automation-core/internal/apperr"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		CallTimeout:      time.Second,
		ResetTimeout:     50 * time.Millisecond,
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	cb := New("test", testConfig())
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := New("test", testConfig())
	failing := func(ctx context.Context) error {
		return apperr.New(apperr.KindTransport, "boom")
	}

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), failing)
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	cb := New("test", testConfig())
	failing := func(ctx context.Context) error { return apperr.New(apperr.KindTransport, "boom") }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	require.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperr.KindCircuitOpen, apperr.KindOf(err))
}

func TestBreakerClosesAfterResetAndSuccesses(t *testing.T) {
	cb := New("test", testConfig())
	failing := func(ctx context.Context) error { return apperr.New(apperr.KindTransport, "boom") }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond) // past ResetTimeout

	succeeding := func(ctx context.Context) error { return nil }
	require.NoError(t, cb.Execute(context.Background(), succeeding)) // half-open, 1st success
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), succeeding)) // 2nd success, closes
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerValidationErrorsDoNotCountTowardTrip(t *testing.T) {
	cb := New("test", testConfig())
	validationErr := func(ctx context.Context) error { return apperr.New(apperr.KindValidation, "bad input") }

	for i := 0; i < 10; i++ {
		err := cb.Execute(context.Background(), validationErr)
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerCallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cb := New("test", cfg)

	slow := func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := cb.Execute(context.Background(), slow)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestDefaultConfigSizing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)
}

func TestNewAppliesDefaultsForZeroValues(t *testing.T) {
	cb := New("test", Config{})
	assert.Equal(t, 5, cb.cfg.FailureThreshold)
	assert.Equal(t, 2, cb.cfg.SuccessThreshold)
}

func TestSnapshotReflectsCounters(t *testing.T) {
	cb := New("test", testConfig())
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return apperr.New(apperr.KindTransport, "boom") })

	snap := cb.Snapshot()
	assert.Equal(t, 1, snap.FailureCount)
	assert.Equal(t, int64(1), snap.TotalRequests)
}

func TestExecuteReturnsUnderlyingErrorOnSuccessPath(t *testing.T) {
	cb := New("test", testConfig())
	sentinel := errors.New("plain failure")
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}
