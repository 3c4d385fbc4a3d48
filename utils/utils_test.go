package utils

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNonce(t *testing.T) {
	nonce, err := GenerateNonce()
	require.NoError(t, err)

	assert.Len(t, nonce, NonceBytes*2)
	assert.Equal(t, strings.ToLower(nonce), nonce)
}

func TestGenerateNonce_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		nonce, err := GenerateNonce()
		require.NoError(t, err)
		assert.False(t, seen[nonce], "nonce reused: %s", nonce)
		seen[nonce] = true
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)

	assert.Len(t, code, 16)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestCircuitBreaker_TripsOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	boom := errors.New("boom")
	for i := 0; i < 100; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
