package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(KindValidation, "bad input")
	assert.Equal(t, "validation: bad input", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindTransport, "dispatch failed", cause)
	assert.Equal(t, "transport: dispatch failed: connection refused", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTimeout, true},
		{KindTransport, true},
		{KindCircuitOpen, true},
		{KindValidation, false},
		{KindNotFound, false},
		{KindDuplicateEvent, false},
		{KindIntegration, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind, "x")
			assert.Equal(t, tt.want, e.Retryable())
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(New(KindValidation, "x")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", New(KindNotFound, "missing"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestRetryableErr(t *testing.T) {
	assert.True(t, RetryableErr(New(KindTimeout, "slow")))
	assert.False(t, RetryableErr(New(KindValidation, "bad")))
	assert.False(t, RetryableErr(errors.New("plain")))
}

func TestRateLimited(t *testing.T) {
	err := RateLimited(30)
	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, 30, err.RetryAfter)
}

func TestTokenExpiredRoundTrip(t *testing.T) {
	err := TokenExpired("token expired, please refresh")
	require.True(t, IsTokenExpired(err))
	assert.Equal(t, "TOKEN_EXPIRED", CodeOf(err))
	assert.False(t, IsTokenExpired(New(KindIntegration, "other")))
}

func TestCodeOfDefaultsEmpty(t *testing.T) {
	assert.Empty(t, CodeOf(New(KindInternal, "x")))
	assert.Empty(t, CodeOf(errors.New("plain")))
}
