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

func TestGobreakerAdapterStartsClosed(t *testing.T) {
	adapter := NewGobreakerAdapter("test", testConfig())
	assert.Equal(t, StateClosed, adapter.State())
}

func TestGobreakerAdapterOpensAfterConsecutiveFailures(t *testing.T) {
	adapter := NewGobreakerAdapter("test", testConfig())
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = adapter.Execute(context.Background(), failing)
	}
	assert.Equal(t, StateOpen, adapter.State())
}

func TestGobreakerAdapterRejectsWhileOpenAsCircuitOpen(t *testing.T) {
	adapter := NewGobreakerAdapter("test", testConfig())
	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = adapter.Execute(context.Background(), failing)
	}
	require.Equal(t, StateOpen, adapter.State())

	err := adapter.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperr.KindCircuitOpen, apperr.KindOf(err))
}

func TestGobreakerAdapterSucceeds(t *testing.T) {
	adapter := NewGobreakerAdapter("test", testConfig())
	err := adapter.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, adapter.State())
}

func TestTranslateState(t *testing.T) {
	cfg := testConfig()
	cfg.ResetTimeout = 10 * time.Millisecond
	adapter := NewGobreakerAdapter("test", cfg)
	assert.Equal(t, StateClosed, adapter.State())
}
