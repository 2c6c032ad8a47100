package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)

	err := Retry(context.Background(), bo, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)

	err := Retry(context.Background(), bo, func() error {
		attempts++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // 1 initial + 2 retries
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bo := backoff.NewConstantBackOff(time.Millisecond)
	attempts := 0
	err := Retry(ctx, bo, func() error {
		attempts++
		return errors.New("fails")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}

func TestNewBoundedExponentialBackoffSizing(t *testing.T) {
	bo := NewBoundedExponentialBackoff(10*time.Millisecond, 200*time.Millisecond).(*backoff.ExponentialBackOff)
	assert.Equal(t, 10*time.Millisecond, bo.InitialInterval)
	assert.Equal(t, 200*time.Millisecond, bo.MaxElapsedTime)
}
